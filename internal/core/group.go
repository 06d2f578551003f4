package core

import "sync"

// group is the set of local clients subscribed to one room.
type group struct {
	token   string
	mu      sync.Mutex
	members map[string]*Client
}

func newGroup(token string) *group {
	return &group{
		token:   token,
		members: make(map[string]*Client),
	}
}

// add inserts a client. Returns true if newly added.
func (g *group) add(c *Client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.members[c.ID]; exists {
		return false
	}
	g.members[c.ID] = c
	return true
}

// remove deletes a client and reports whether the group is now empty.
func (g *group) remove(c *Client) (empty bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cur, ok := g.members[c.ID]; ok && cur == c {
		delete(g.members, c.ID)
	}
	return len(g.members) == 0
}

func (g *group) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// deliver sends event to every member except exclude. Members whose send
// fails are removed and returned so the caller can close them.
func (g *group) deliver(event *Event, exclude string) []*Client {
	g.mu.Lock()
	defer g.mu.Unlock()

	var failed []*Client
	for id, c := range g.members {
		if id == exclude {
			continue
		}
		if err := c.Send(event); err != nil {
			delete(g.members, id)
			failed = append(failed, c)
		}
	}
	return failed
}

// drain empties the group and returns its former members.
func (g *group) drain() []*Client {
	g.mu.Lock()
	defer g.mu.Unlock()

	members := make([]*Client, 0, len(g.members))
	for id, c := range g.members {
		members = append(members, c)
		delete(g.members, id)
	}
	return members
}
