// Package session owns the live-connection fabric: per-UUID mailboxes for
// server-initiated messages, per-UUID broadcast channels feeding
// subscribers, and the state-ping replay store.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// mailboxSize bounds the per-session queue of server-originated messages.
const mailboxSize = 64

// MessageKind discriminates mailbox items.
type MessageKind uint8

const (
	// MessagePing carries an encoded S2C frame to write to the socket.
	MessagePing MessageKind = iota
	// MessageBanned orders the session to run the ban ritual and close.
	MessageBanned
)

// Message is one item in a session mailbox.
type Message struct {
	Kind  MessageKind
	Frame []byte
}

// Ping wraps an encoded frame as a mailbox item.
func Ping(frame []byte) Message { return Message{Kind: MessagePing, Frame: frame} }

// Banned is the teardown order.
func Banned() Message { return Message{Kind: MessageBanned} }

// Registry maps UUIDs to their session mailbox and their subscriber
// broadcast. A mailbox exists only while a WebSocket is attached; a
// broadcast, once created, lives until process exit so late subscribers
// never lose the topic.
type Registry struct {
	mu         sync.RWMutex
	mailboxes  map[uuid.UUID]chan Message
	broadcasts map[uuid.UUID]*Broadcast
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		mailboxes:  make(map[uuid.UUID]chan Message),
		broadcasts: make(map[uuid.UUID]*Broadcast),
	}
}

// Attach creates and registers the mailbox for a freshly authenticated
// session, replacing any prior one. The single-session invariant in the
// user manager keeps legitimate traffic from ever contending here.
func (r *Registry) Attach(id uuid.UUID) chan Message {
	mailbox := make(chan Message, mailboxSize)
	r.mu.Lock()
	r.mailboxes[id] = mailbox
	r.mu.Unlock()
	return mailbox
}

// Detach drops the mailbox registered by this session. The mailbox channel
// itself is abandoned, not closed: a racing Send may still hold it.
func (r *Registry) Detach(id uuid.UUID, mailbox chan Message) {
	r.mu.Lock()
	if r.mailboxes[id] == mailbox {
		delete(r.mailboxes, id)
	}
	r.mu.Unlock()
}

// Send pushes a message into the session mailbox for id, without blocking.
// It reports false when no session is attached or the mailbox is full.
func (r *Registry) Send(id uuid.UUID, msg Message) bool {
	r.mu.RLock()
	mailbox, ok := r.mailboxes[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case mailbox <- msg:
		return true
	default:
		return false
	}
}

// Attached reports whether a session mailbox exists for id.
func (r *Registry) Attached(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.mailboxes[id]
	return ok
}

// Sessions snapshots the UUIDs with an attached mailbox.
func (r *Registry) Sessions() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.mailboxes))
	for id := range r.mailboxes {
		out = append(out, id)
	}
	return out
}

// SessionCount returns the number of attached sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mailboxes)
}

// Subscribers resolves the broadcast channel for id, creating it lazily on
// first reference.
func (r *Registry) Subscribers(id uuid.UUID) *Broadcast {
	r.mu.RLock()
	b, ok := r.broadcasts[id]
	r.mu.RUnlock()
	if ok {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.broadcasts[id]; ok {
		return b
	}
	b = newBroadcast()
	r.broadcasts[id] = b
	return b
}

// HasSubscribers reports whether a broadcast channel already exists for id,
// without creating one.
func (r *Registry) HasSubscribers(id uuid.UUID) (*Broadcast, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.broadcasts[id]
	return b, ok
}
