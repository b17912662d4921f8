package auth

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/crescent-mc/chisel/internal/user"
)

func validator(t *testing.T, handler http.HandlerFunc) user.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return user.Provider{Name: t.Name(), URL: srv.URL}
}

func TestNewServerID(t *testing.T) {
	first, err := NewServerID()
	require.NoError(t, err)
	require.Len(t, first, 40)
	_, err = hex.DecodeString(first)
	require.NoError(t, err)

	second, err := NewServerID()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestHasJoinedSuccess(t *testing.T) {
	want := uuid.New()
	hit := validator(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "abc", r.URL.Query().Get("serverId"))
		require.Equal(t, "Steve", r.URL.Query().Get("username"))
		w.Write([]byte(`{"id":"` + want.String() + `","name":"Steve"}`))
	})
	miss := validator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	o := NewOrchestrator(nil, zerolog.Nop())
	res, err := o.HasJoined(context.Background(), []user.Provider{miss, hit}, "abc", "Steve")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, want, res.UUID)
	require.Equal(t, hit.Name, res.Provider.Name)
}

func TestHasJoinedAllMiss(t *testing.T) {
	noContent := validator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	unauthorized := validator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	o := NewOrchestrator(nil, zerolog.Nop())
	res, err := o.HasJoined(context.Background(), []user.Provider{noContent, unauthorized}, "abc", "Steve")
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestHasJoinedTransportError(t *testing.T) {
	broken := validator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	o := NewOrchestrator(nil, zerolog.Nop())
	res, err := o.HasJoined(context.Background(), []user.Provider{broken}, "abc", "Steve")
	require.Error(t, err)
	require.Nil(t, res)
	require.Contains(t, err.Error(), "external validators")
}

func TestHasJoinedSuccessCancelsSlowProvider(t *testing.T) {
	want := uuid.New()
	var slowDone atomic.Bool
	fast := validator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"` + want.String() + `"}`))
	})
	slow := validator(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			slowDone.Store(true)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	o := NewOrchestrator(nil, zerolog.Nop())
	start := time.Now()
	res, err := o.HasJoined(context.Background(), []user.Provider{slow, fast}, "abc", "Steve")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, want, res.UUID)
	require.Less(t, time.Since(start), 3*time.Second)
	require.False(t, slowDone.Load())
}
