// Package api serves the HTTP surface: the authentication handshake, profile
// and avatar endpoints, and the admin bridge into live WebSocket sessions.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crescent-mc/chisel/internal/avatar"
	"github.com/crescent-mc/chisel/internal/config"
	"github.com/crescent-mc/chisel/internal/metrics"
	"github.com/crescent-mc/chisel/internal/session"
	"github.com/crescent-mc/chisel/internal/user"
	"github.com/crescent-mc/chisel/internal/wire"
)

// Verifier resolves a completed handshake. Split out so tests can stub the
// external validators.
type Verifier interface {
	Verify(ctx context.Context, serverID, nickname string) (VerifyResult, error)
}

// VerifyResult mirrors a positive validator answer.
type VerifyResult struct {
	OK       bool
	UUID     uuid.UUID
	Provider user.Provider
}

// Server wires all HTTP handlers around the shared state.
type Server struct {
	log      zerolog.Logger
	cfg      *config.Store
	users    *user.Manager
	sessions *session.Registry
	avatars  *avatar.Store
	verifier Verifier
	metrics  *metrics.Registry
	start    time.Time

	// assetsDir, when set, is served read-only under /api/assets/.
	assetsDir string
}

// ServeAssets enables the static asset handler.
func (s *Server) ServeAssets(dir string) { s.assetsDir = dir }

// NewServer builds the handler set. start anchors the MOTD uptime line.
func NewServer(
	log zerolog.Logger,
	cfg *config.Store,
	users *user.Manager,
	sessions *session.Registry,
	avatars *avatar.Store,
	verifier Verifier,
	reg *metrics.Registry,
	start time.Time,
) *Server {
	return &Server{
		log:      log,
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		avatars:  avatars,
		verifier: verifier,
		metrics:  reg,
		start:    start,
	}
}

// Routes assembles the mux. ws handles the /ws upgrade; nil disables it so
// handler tests do not need a socket stack.
func (s *Server) Routes(ws http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/auth/id", s.authID)
	mux.HandleFunc("GET /api/auth/verify", s.authVerify)

	mux.HandleFunc("GET /api/limits", s.limits)
	mux.HandleFunc("GET /api/version", s.version)
	mux.HandleFunc("GET /api/motd", s.motd)
	mux.HandleFunc("POST /api/equip", s.equipAvatar)
	mux.HandleFunc("GET /api/{uuid}", s.userInfo)
	mux.HandleFunc("GET /api/{uuid}/avatar", s.downloadAvatar)
	mux.HandleFunc("PUT /api/avatar", s.uploadAvatar)
	mux.HandleFunc("DELETE /api/avatar", s.deleteAvatar)
	mux.HandleFunc("GET /api/{$}", s.checkAuth)

	mux.HandleFunc("GET /api/v1/verify", s.adminVerify)
	mux.HandleFunc("POST /api/v1/raw", s.adminRaw)
	mux.HandleFunc("POST /api/v1/sub/raw", s.adminSubRaw)
	mux.HandleFunc("POST /api/v1/user/create", s.adminCreateUser)
	mux.HandleFunc("POST /api/v1/user/{uuid}/ban", s.adminBan)
	mux.HandleFunc("POST /api/v1/user/{uuid}/unban", s.adminUnban)
	mux.HandleFunc("GET /api/v1/user/list", s.adminListUsers)
	mux.HandleFunc("GET /api/v1/user/sessions", s.adminListSessions)
	mux.HandleFunc("PUT /api/v1/avatar/{uuid}", s.adminUploadAvatar)
	mux.HandleFunc("DELETE /api/v1/avatar/{uuid}", s.adminDeleteAvatar)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	if s.assetsDir != "" {
		mux.Handle("GET /api/assets/", http.StripPrefix("/api/assets/", http.FileServer(http.Dir(s.assetsDir))))
	}

	if ws != nil {
		mux.Handle("GET /ws", ws)
	}
	if s.metrics != nil && s.cfg.Get().MetricsEnabled {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	var handler http.Handler = mux
	if s.metrics != nil {
		handler = s.metrics.Middleware(handler)
	}
	return normalizePath(handler)
}

// normalizePath collapses consecutive slashes before routing. Some client
// builds request /api//auth/id.
func normalizePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "//") {
			path := r.URL.Path
			for strings.Contains(path, "//") {
				path = strings.ReplaceAll(path, "//", "/")
			}
			r2 := r.Clone(r.Context())
			r2.URL.Path = path
			r = r2
		}
		next.ServeHTTP(w, r)
	})
}

// sendEvent tells the owner and every subscriber that uuid's avatar changed.
func (s *Server) sendEvent(id uuid.UUID) {
	frame := wire.S2CEvent{UUID: id}.Encode()
	if b, ok := s.sessions.HasSubscribers(id); ok {
		b.Publish(frame)
	}
	if !s.sessions.Send(id, session.Ping(frame)) {
		s.log.Debug().Str("uuid", id.String()).Msg("Event not delivered, no attached session")
	}
}
