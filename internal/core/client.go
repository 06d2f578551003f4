package core

import "sync"

// DefaultSendBuffer is the outbound queue size used when none is configured.
const DefaultSendBuffer = 16

// Client is one live socket as seen by the core layer.
type Client struct {
	ID     string
	Name   string
	Admin  bool
	Events chan *Event

	mu          sync.Mutex
	closed      bool
	closeReason string
	done        chan struct{}
}

// NewClient constructs a client with an outbound queue of the given size.
func NewClient(id, name string, admin bool, buffer int) *Client {
	if name == "" {
		name = AnonymousName
	}
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		ID:     id,
		Name:   name,
		Admin:  admin,
		Events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// Send queues an event without blocking.
func (c *Client) Send(event *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Events <- event:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close marks the client as force-closed. The transport drains queued
// events and then closes the socket. Only the first reason is kept.
func (c *Client) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.closeReason = reason
	close(c.done)
}

// Done is closed once the client has been force-closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// CloseReason reports why the client was closed.
func (c *Client) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}
