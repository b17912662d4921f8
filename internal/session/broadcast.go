package session

import "sync"

// subscriberQueueSize is the per-subscriber ring depth. Presence pings are
// lossy by design: a full queue drops the frame for that subscriber only.
const subscriberQueueSize = 32

// Broadcast is a multi-consumer fan-out of one player's published frames.
// Publishing never blocks; each subscriber owns a bounded queue.
type Broadcast struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscription is one consumer of a Broadcast. Frames arrive on C until
// Cancel is called.
type Subscription struct {
	C chan []byte

	b    *Broadcast
	once sync.Once
}

func newBroadcast() *Broadcast {
	return &Broadcast{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new consumer.
func (b *Broadcast) Subscribe() *Subscription {
	sub := &Subscription{C: make(chan []byte, subscriberQueueSize), b: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers frame to every live subscriber, at most once each.
// Subscribers whose queue is full miss this frame; the rest are unaffected.
// Returns the number of subscribers that received it.
func (b *Broadcast) Publish(frame []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	delivered := 0
	for sub := range b.subs {
		select {
		case sub.C <- frame:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the current consumer count.
func (b *Broadcast) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Cancel detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.b.mu.Lock()
		delete(s.b.subs, s)
		s.b.mu.Unlock()
		close(s.C)
	})
}
