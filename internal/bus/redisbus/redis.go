package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/core"
)

const (
	channelPrefix = "strangerchat:room:"
	onlineKey     = "strangerchat:online"
)

// Options configures the redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Bus is a core.Bus backed by redis pub/sub. Every instance subscribes to
// all room channels and delivers to its local members.
type Bus struct {
	rdb *redis.Client
	log *zerolog.Logger

	mu      sync.Mutex
	subs    []*redis.PubSub
	wg      sync.WaitGroup
	closing chan struct{}
	closed  bool
}

var _ core.Bus = (*Bus)(nil)

// New connects to redis and verifies connectivity.
func New(ctx context.Context, opts Options, logger *zerolog.Logger) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bus{rdb: rdb, log: logger, closing: make(chan struct{})}, nil
}

// Publish sends env to the room's channel.
func (b *Bus) Publish(ctx context.Context, env core.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, channel(env.Room), raw).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe listens to every room channel and invokes deliver for each
// envelope, in publish order. It returns once redis has confirmed the
// subscription.
func (b *Bus) Subscribe(ctx context.Context, deliver func(core.Envelope)) error {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("psubscribe: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = pubsub.Close()
		return fmt.Errorf("bus closed")
	}
	b.subs = append(b.subs, pubsub)
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		ch := pubsub.Channel()
		for {
			select {
			case <-b.closing:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env core.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed envelope")
					continue
				}
				if env.Room == "" {
					env.Room = strings.TrimPrefix(msg.Channel, channelPrefix)
				}
				deliver(env)
			}
		}
	}()
	return nil
}

func (b *Bus) Track(ctx context.Context, clientID string) error {
	return b.rdb.SAdd(ctx, onlineKey, clientID).Err()
}

func (b *Bus) Untrack(ctx context.Context, clientID string) error {
	return b.rdb.SRem(ctx, onlineKey, clientID).Err()
}

func (b *Bus) IsOnline(ctx context.Context, clientID string) (bool, error) {
	return b.rdb.SIsMember(ctx, onlineKey, clientID).Result()
}

// Close stops subscriptions and shuts down the redis connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closing)
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	b.wg.Wait()
	return b.rdb.Close()
}

// channel namespacing for room pub/sub
func channel(token string) string { return channelPrefix + token }
