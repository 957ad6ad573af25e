package session

import (
	"sync"
)

// Sink receives session events. Events for one session arrive in order
// from a single goroutine; the terminal snapshot is always last.
type Sink interface {
	PublishProgress(s Snapshot)
	PublishGroups(b GroupBatch)
}

// MultiSink fans events out to several sinks in order
type MultiSink []Sink

func (m MultiSink) PublishProgress(s Snapshot) {
	for _, sink := range m {
		if sink != nil {
			sink.PublishProgress(s)
		}
	}
}

func (m MultiSink) PublishGroups(b GroupBatch) {
	for _, sink := range m {
		if sink != nil {
			sink.PublishGroups(b)
		}
	}
}

// Event is one item on a ChannelSink subscription; exactly one field is set
type Event struct {
	Progress *Snapshot   `json:"progress,omitempty"`
	Groups   *GroupBatch `json:"groups,omitempty"`
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// ChannelSink delivers events to per-session channel subscribers. Progress
// snapshots are dropped for a subscriber whose buffer is full; group batches
// and the terminal snapshot wait until the subscriber reads or unsubscribes.
// Subscriber channels are closed after the terminal snapshot.
type ChannelSink struct {
	mu     sync.Mutex
	subs   map[string][]*subscriber
	buffer int
}

// NewChannelSink creates a sink whose subscriptions buffer that many events
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{subs: make(map[string][]*subscriber), buffer: buffer}
}

// Subscribe returns the event stream for a session and a function that
// ends the subscription
func (c *ChannelSink) Subscribe(sessionID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, c.buffer), done: make(chan struct{})}

	c.mu.Lock()
	c.subs[sessionID] = append(c.subs[sessionID], sub)
	c.mu.Unlock()

	return sub.ch, func() {
		sub.close()
		c.remove(sessionID, sub)
	}
}

func (c *ChannelSink) PublishProgress(s Snapshot) {
	terminal := s.Stage.Terminal()
	for _, sub := range c.subscribers(s.SessionID, terminal) {
		snap := s
		ev := Event{Progress: &snap}
		if terminal {
			select {
			case sub.ch <- ev:
			case <-sub.done:
			}
			sub.close()
			close(sub.ch)
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (c *ChannelSink) PublishGroups(b GroupBatch) {
	for _, sub := range c.subscribers(b.SessionID, false) {
		batch := b
		select {
		case sub.ch <- Event{Groups: &batch}:
		case <-sub.done:
		}
	}
}

// subscribers returns the current subscribers of a session; detach removes
// them from the registry so nothing else sends on their channels
func (c *ChannelSink) subscribers(sessionID string, detach bool) []*subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := append([]*subscriber(nil), c.subs[sessionID]...)
	if detach {
		delete(c.subs, sessionID)
	}
	return subs
}

func (c *ChannelSink) remove(sessionID string, target *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.subs[sessionID]
	for i, s := range subs {
		if s == target {
			c.subs[sessionID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(c.subs[sessionID]) == 0 {
		delete(c.subs, sessionID)
	}
}
