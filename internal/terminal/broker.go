// Package terminal manages a single logical code-execution run: the line
// input buffer, the ordered log of output events, and the state machine that
// governs start, completion, failure, and cancellation.
package terminal

import "sync"

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Event types carried on the channel: output events during a run, and a
// single run-complete event when the run reaches a terminal state.
const (
	EventOutput      = "output"
	EventRunComplete = "run-complete"
)

// Event is one message on a session's event channel. Output events carry a
// stream tag and text; run-complete events carry the final status. Output
// events are delivered to subscribers in the exact order they were produced;
// interleaved stdout/stderr order encodes program behavior the user depends
// on.
type Event struct {
	Type   string `json:"type"`
	Stream string `json:"stream,omitempty"`
	Text   string `json:"text,omitempty"`
	Status string `json:"status,omitempty"`
}

// Broker fans out events to subscribers by topic. The server keys topics by
// user ID so one subscription covers every run that user starts; a session
// publishes to whatever topic it was created with. Safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers receive a
// closed channel instead of blocking forever.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topic),
	}
}

// Subscribe returns a channel that receives events for the given topic and
// an unsubscribe function. If the topic was already closed, the returned
// channel is immediately closed.
func (b *Broker) Subscribe(name string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[name] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends an event to all subscribers of the given topic.
// Events are dropped for subscribers whose buffers are full.
func (b *Broker) Publish(name string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop for slow subscribers to avoid blocking execution.
		}
	}
}

// Close signals that no more events will be published for the given topic.
// All subscriber channels are closed and future Subscribe calls return a
// closed channel.
func (b *Broker) Close(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok {
		b.topics[name] = &topic{subs: make(map[int]chan Event), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
