package session

import (
	"sync"

	"github.com/google/uuid"
)

// statePingCap bounds the replay list per UUID. The client controls resets;
// the cap only bounds memory, dropping the oldest frame when exceeded.
const statePingCap = 64

// StatePings keeps, per UUID, the ordered list of encoded S2C Ping frames
// the client asked the server to remember. New subscribers get the list
// replayed so late joiners see current worn state.
type StatePings struct {
	mu      sync.Mutex
	byOwner map[uuid.UUID][][]byte
}

// NewStatePings returns an empty store.
func NewStatePings() *StatePings {
	return &StatePings{byOwner: make(map[uuid.UUID][][]byte)}
}

// Reset empties the list for id. Called on session start and on explicit
// client request.
func (s *StatePings) Reset(id uuid.UUID) {
	s.mu.Lock()
	delete(s.byOwner, id)
	s.mu.Unlock()
}

// Append records an encoded frame at the end of id's list.
func (s *StatePings) Append(id uuid.UUID, frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byOwner[id]
	if len(list) >= statePingCap {
		list = list[1:]
	}
	s.byOwner[id] = append(list, frame)
}

// Snapshot returns id's list in insertion order.
func (s *StatePings) Snapshot(id uuid.UUID) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byOwner[id]
	out := make([][]byte, len(list))
	copy(out, list)
	return out
}
