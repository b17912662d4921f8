package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/crescent-mc/chisel/internal/auth"
	"github.com/crescent-mc/chisel/internal/config"
	"github.com/crescent-mc/chisel/internal/user"
)

// OrchestratorVerifier adapts the validator orchestrator to the handler
// interface, resolving the provider list from live config on every call.
type OrchestratorVerifier struct {
	Orchestrator *auth.Orchestrator
	Config       *config.Store
}

func (v OrchestratorVerifier) Verify(ctx context.Context, serverID, nickname string) (VerifyResult, error) {
	providers := v.Config.Get().AuthProviders
	if len(providers) == 0 {
		providers = auth.DefaultProviders()
	}
	res, err := v.Orchestrator.HasJoined(ctx, providers, serverID, nickname)
	if err != nil {
		return VerifyResult{}, err
	}
	if res == nil {
		return VerifyResult{}, nil
	}
	return VerifyResult{OK: true, UUID: res.UUID, Provider: res.Provider}, nil
}

// authID starts the handshake: it mints a serverId, parks the nickname under
// it and hands the serverId to the client for the Mojang join call.
func (s *Server) authID(w http.ResponseWriter, r *http.Request) {
	nickname := r.URL.Query().Get("username")
	serverID, err := auth.NewServerID()
	if err != nil {
		s.log.Error().Err(err).Msg("serverId generation failed")
		writeText(w, http.StatusInternalServerError, "internal verify error")
		return
	}
	s.users.PendingInsert(serverID, nickname)
	writeText(w, http.StatusOK, serverID)
}

// authVerify finishes the handshake: the pending serverId is consumed, the
// external validators confirm the join, and the serverId becomes the
// session token.
func (s *Server) authVerify(w http.ResponseWriter, r *http.Request) {
	serverID := r.URL.Query().Get("id")
	nickname, ok := s.users.PendingRemove(serverID)
	if !ok {
		writeText(w, http.StatusInternalServerError, "internal verify error")
		return
	}

	res, err := s.verifier.Verify(r.Context(), serverID, nickname)
	if err != nil {
		s.log.Error().Err(err).Str("nickname", nickname).Msg("Authentication verify failed")
		writeText(w, http.StatusInternalServerError, "internal verify error")
		return
	}
	if !res.OK {
		s.log.Info().Str("nickname", nickname).Msg("Failed to verify")
		writeText(w, http.StatusBadRequest, "failed to verify")
		return
	}
	if s.users.IsBanned(res.UUID) {
		s.log.Info().Str("nickname", nickname).Msg("Banned player tried to log in")
		writeText(w, http.StatusBadRequest, "You're banned!")
		return
	}

	info := user.NewUserinfo(res.UUID)
	info.Nickname = nickname
	info.AuthProvider = res.Provider
	if ua := r.Header.Get("User-Agent"); ua != "" {
		info.Version = ua
	}
	if err := s.users.Insert(res.UUID, serverID, info); err != nil {
		if !errors.Is(err, user.ErrSecondSession) {
			writeText(w, http.StatusInternalServerError, "internal verify error")
			return
		}
		// A stale session holds the slot. Evict it and retry once.
		s.users.Remove(res.UUID)
		if err := s.users.Insert(res.UUID, serverID, info); err != nil {
			s.log.Warn().Str("nickname", nickname).Msg("Second session detected")
			writeText(w, http.StatusBadRequest, "second session detected")
			return
		}
	}

	s.log.Info().Str("nickname", nickname).Str("provider", res.Provider.Name).Msg("Logged in")
	writeText(w, http.StatusOK, serverID)
}

// checkAuth lets a client probe whether its token is still valid.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("token")
	if token == "" {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	if s.users.IsAuthenticated(token) {
		writeText(w, http.StatusOK, "ok")
		return
	}
	writeText(w, http.StatusUnauthorized, "unauthorized")
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(body))
}
