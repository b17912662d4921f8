package user

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PendingTTL bounds how long an /id handshake may sit unverified before the
// janitor drops it.
const PendingTTL = 5 * time.Minute

// ErrSecondSession is returned by Insert when the profile already owns a
// live session token. The caller is expected to Remove and retry once.
var ErrSecondSession = errors.New("second session detected")

// Manager owns the pending, authenticated and registered maps. All methods
// are safe for concurrent use; locking is per profile, never whole-map.
type Manager struct {
	pending       sync.Map // serverId -> pendingHandshake
	authenticated sync.Map // token -> uuid.UUID
	registered    sync.Map // uuid.UUID -> *entry
	authCount     atomic.Int64
}

type entry struct {
	mu   sync.Mutex
	info Userinfo
}

type pendingHandshake struct {
	nickname string
	at       time.Time
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) entry(id uuid.UUID) *entry {
	if e, ok := m.registered.Load(id); ok {
		return e.(*entry)
	}
	e, _ := m.registered.LoadOrStore(id, &entry{info: NewUserinfo(id)})
	return e.(*entry)
}

// PendingInsert records a freshly issued serverId for the first handshake
// phase.
func (m *Manager) PendingInsert(serverID, nickname string) {
	m.pending.Store(serverID, pendingHandshake{nickname: nickname, at: time.Now()})
}

// PendingRemove consumes a pending handshake. The handshake is single-use:
// a second call for the same serverId misses.
func (m *Manager) PendingRemove(serverID string) (string, bool) {
	v, ok := m.pending.LoadAndDelete(serverID)
	if !ok {
		return "", false
	}
	return v.(pendingHandshake).nickname, true
}

// PurgePending drops handshakes older than ttl and reports how many went.
func (m *Manager) PurgePending(ttl time.Duration) int {
	deadline := time.Now().Add(-ttl)
	purged := 0
	m.pending.Range(func(key, value any) bool {
		if value.(pendingHandshake).at.Before(deadline) {
			if _, loaded := m.pending.LoadAndDelete(key); loaded {
				purged++
			}
		}
		return true
	})
	return purged
}

// RunJanitor purges stale pending handshakes until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, log zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.PurgePending(PendingTTL); n > 0 {
				log.Debug().Int("purged", n).Msg("Dropped stale pending handshakes")
			}
		}
	}
}

// Insert registers a new session token for the profile and upsert-merges the
// supplied Userinfo. It fails with ErrSecondSession when the profile already
// holds a token that is still present in the authenticated index.
func (m *Manager) Insert(id uuid.UUID, token string, info Userinfo) error {
	e := m.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.info.Token != "" {
		if _, live := m.authenticated.Load(e.info.Token); live {
			return ErrSecondSession
		}
	}
	m.authenticated.Store(token, id)
	m.authCount.Add(1)
	info.Token = token
	merge(&e.info, info)
	return nil
}

// InsertUser upsert-merges a profile without touching the authenticated
// index. Used by the config loader and the admin API.
func (m *Manager) InsertUser(id uuid.UUID, info Userinfo) {
	e := m.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	info.Token = "" // sessions are only created through Insert
	merge(&e.info, info)
}

// Get resolves a session token to its profile.
func (m *Manager) Get(token string) (Userinfo, bool) {
	v, ok := m.authenticated.Load(token)
	if !ok {
		return Userinfo{}, false
	}
	return m.GetByUUID(v.(uuid.UUID))
}

// GetByUUID returns a copy of the registered profile.
func (m *Manager) GetByUUID(id uuid.UUID) (Userinfo, bool) {
	v, ok := m.registered.Load(id)
	if !ok {
		return Userinfo{}, false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info, true
}

// IsAuthenticated reports whether the token indexes a live session.
func (m *Manager) IsAuthenticated(token string) bool {
	_, ok := m.authenticated.Load(token)
	return ok
}

// IsBanned reports the ban flag for the UUID; unknown UUIDs are not banned.
func (m *Manager) IsBanned(id uuid.UUID) bool {
	info, ok := m.GetByUUID(id)
	return ok && info.Banned
}

// Ban marks the profile banned, upserting the minimum fields. It does not
// evict a live session; the caller drives teardown via the session mailbox.
func (m *Manager) Ban(info Userinfo) {
	e := m.entry(info.UUID)
	e.mu.Lock()
	defer e.mu.Unlock()
	info.Token = ""
	merge(&e.info, info)
	e.info.Banned = true
}

// Unban clears the ban flag. A no-op for unknown UUIDs.
func (m *Manager) Unban(id uuid.UUID) {
	v, ok := m.registered.Load(id)
	if !ok {
		return
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.info.Banned = false
}

// Remove drops the profile's current token from the authenticated index.
// The registered profile itself stays: the user remains known and the next
// handshake may re-establish a session.
func (m *Manager) Remove(id uuid.UUID) {
	v, ok := m.registered.Load(id)
	if !ok {
		return
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.info.Token == "" {
		return
	}
	if _, loaded := m.authenticated.LoadAndDelete(e.info.Token); loaded {
		m.authCount.Add(-1)
	}
	e.info.Token = ""
}

// CountAuthenticated returns the number of live session tokens.
func (m *Manager) CountAuthenticated() int {
	return int(m.authCount.Load())
}

// Registered snapshots every profile, keyed by hyphenated UUID, for the
// admin listing.
func (m *Manager) Registered() map[string]Userinfo {
	out := make(map[string]Userinfo)
	m.registered.Range(func(key, value any) bool {
		e := value.(*entry)
		e.mu.Lock()
		out[key.(uuid.UUID).String()] = e.info
		e.mu.Unlock()
		return true
	})
	return out
}

// Authenticated snapshots the token index for the admin session listing.
func (m *Manager) Authenticated() map[string]uuid.UUID {
	out := make(map[string]uuid.UUID)
	m.authenticated.Range(func(key, value any) bool {
		out[key.(string)] = value.(uuid.UUID)
		return true
	})
	return out
}
