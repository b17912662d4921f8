package user

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var alice = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func TestInsertAndGet(t *testing.T) {
	m := NewManager()
	info := NewUserinfo(alice)
	info.Nickname = "Alice"

	require.NoError(t, m.Insert(alice, "tok-1", info))

	got, ok := m.Get("tok-1")
	require.True(t, ok)
	require.Equal(t, "Alice", got.Nickname)
	require.Equal(t, "tok-1", got.Token)
	require.Equal(t, 1, m.CountAuthenticated())
}

func TestSingleSessionConflict(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Insert(alice, "tok-1", NewUserinfo(alice)))

	err := m.Insert(alice, "tok-2", NewUserinfo(alice))
	require.ErrorIs(t, err, ErrSecondSession)

	// The documented recovery: Remove, then retry once.
	m.Remove(alice)
	require.NoError(t, m.Insert(alice, "tok-2", NewUserinfo(alice)))

	_, ok := m.Get("tok-1")
	require.False(t, ok)
	got, ok := m.Get("tok-2")
	require.True(t, ok)
	require.Equal(t, alice, got.UUID)
	require.Equal(t, 1, m.CountAuthenticated())
}

// Every authenticated token must point at a registered profile whose Token
// field equals that token, and no UUID may hold two tokens.
func TestTokenIndexInvariants(t *testing.T) {
	m := NewManager()
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func(id uuid.UUID, token string) {
				defer wg.Done()
				if err := m.Insert(id, token, NewUserinfo(id)); err != nil {
					m.Remove(id)
					_ = m.Insert(id, token, NewUserinfo(id))
				}
			}(id, fmt.Sprintf("tok-%d-%d", i, j))
		}
	}
	wg.Wait()

	seen := make(map[uuid.UUID]int)
	for token, id := range m.Authenticated() {
		seen[id]++
		info, ok := m.GetByUUID(id)
		require.True(t, ok)
		require.Equal(t, token, info.Token)
	}
	for id, n := range seen {
		require.Equal(t, 1, n, "uuid %s holds %d tokens", id, n)
	}
}

func TestUpsertMergePreservesFields(t *testing.T) {
	m := NewManager()

	// Config hydration writes nickname and ban state only.
	cfg := NewUserinfo(alice)
	cfg.Nickname = "Alice"
	cfg.Special = [6]uint8{1, 0, 0, 0, 0, 0}
	m.InsertUser(alice, cfg)

	// A later live handshake owns provider, version and token.
	hs := NewUserinfo(alice)
	hs.AuthProvider = Provider{Name: "Mojang", URL: "https://example.test"}
	hs.Version = "0.1.4+1.20.4"
	require.NoError(t, m.Insert(alice, "tok", hs))

	got, _ := m.GetByUUID(alice)
	require.Equal(t, "Alice", got.Nickname)
	require.Equal(t, "Mojang", got.AuthProvider.Name)
	require.Equal(t, "0.1.4+1.20.4", got.Version)
	require.Equal(t, [6]uint8{1, 0, 0, 0, 0, 0}, got.Special)

	// Re-hydration from config must not clobber the handshake's fields.
	m.InsertUser(alice, cfg)
	got, _ = m.GetByUUID(alice)
	require.Equal(t, "Mojang", got.AuthProvider.Name)
	require.Equal(t, "tok", got.Token)
}

func TestInsertUserIdempotent(t *testing.T) {
	m := NewManager()
	info := NewUserinfo(alice)
	info.Nickname = "Alice"

	m.InsertUser(alice, info)
	before := m.Registered()
	m.InsertUser(alice, info)
	require.Equal(t, before, m.Registered())
}

func TestBanUnban(t *testing.T) {
	m := NewManager()
	info := NewUserinfo(alice)
	info.Nickname = "Alice"
	m.Ban(info)

	require.True(t, m.IsBanned(alice))
	got, _ := m.GetByUUID(alice)
	require.Equal(t, "Alice", got.Nickname)

	m.Unban(alice)
	require.False(t, m.IsBanned(alice))
	m.Unban(alice) // second unban is a no-op
	require.False(t, m.IsBanned(alice))
}

func TestRemoveIdempotent(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Insert(alice, "tok", NewUserinfo(alice)))

	m.Remove(alice)
	m.Remove(alice)
	require.Equal(t, 0, m.CountAuthenticated())
	_, registered := m.GetByUUID(alice)
	require.True(t, registered, "Remove must keep the profile")
}

func TestRemoveUnknownUUID(t *testing.T) {
	m := NewManager()
	m.Remove(alice)
	require.Equal(t, 0, m.CountAuthenticated())
}

func TestPendingLifecycle(t *testing.T) {
	m := NewManager()
	m.PendingInsert("server-id", "Alice")

	nickname, ok := m.PendingRemove("server-id")
	require.True(t, ok)
	require.Equal(t, "Alice", nickname)

	_, ok = m.PendingRemove("server-id")
	require.False(t, ok, "handshake is single-use")
}

func TestPurgePending(t *testing.T) {
	m := NewManager()
	m.pending.Store("old", pendingHandshake{nickname: "Old", at: time.Now().Add(-10 * time.Minute)})
	m.PendingInsert("fresh", "Fresh")

	require.Equal(t, 1, m.PurgePending(PendingTTL))
	_, ok := m.PendingRemove("fresh")
	require.True(t, ok)
}
