package api

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/crescent-mc/chisel/internal/session"
	"github.com/crescent-mc/chisel/internal/user"
)

// adminGate enforces the operator token. A server without a configured
// token keeps the whole admin surface locked.
func (s *Server) adminGate(w http.ResponseWriter, r *http.Request) bool {
	expected := s.cfg.Get().Token
	if expected == "" {
		s.log.Warn().Msg("Admin endpoint hit, but no token is configured")
		writeText(w, http.StatusLocked, "token doesn't defined")
		return false
	}
	got := r.Header.Get("token")
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		s.log.Warn().Msg("Admin endpoint hit with a wrong token")
		writeText(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}

func (s *Server) adminVerify(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w, r) {
		return
	}
	writeText(w, http.StatusOK, "ok")
}

// adminRaw injects a hex-encoded frame into one session's socket, or into
// every session with ?all.
func (s *Server) adminRaw(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w, r) {
		return
	}
	payload, ok := s.readRawBody(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	hasUUID := query.Has("uuid")
	hasAll := query.Has("all")
	if hasUUID == hasAll {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}

	if hasAll {
		for _, id := range s.sessions.Sessions() {
			if !s.sessions.Send(id, session.Ping(payload)) {
				s.log.Debug().Str("uuid", id.String()).Msg("Raw frame dropped, mailbox unavailable")
			}
		}
		writeText(w, http.StatusOK, "ok")
		return
	}

	id, err := uuid.Parse(query.Get("uuid"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	if !s.sessions.Send(id, session.Ping(payload)) {
		writeText(w, http.StatusNotFound, "not found")
		return
	}
	writeText(w, http.StatusOK, "ok")
}

// adminSubRaw publishes a hex-encoded frame to uuid's subscribers.
func (s *Server) adminSubRaw(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w, r) {
		return
	}
	payload, ok := s.readRawBody(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(r.URL.Query().Get("uuid"))
	if err != nil {
		writeText(w, http.StatusNotFound, "not found")
		return
	}
	b, ok := s.sessions.HasSubscribers(id)
	if !ok {
		writeText(w, http.StatusNotFound, "not found")
		return
	}
	b.Publish(payload)
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) readRawBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeText(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	payload, err := hex.DecodeString(string(body))
	if err != nil {
		s.log.Warn().Msg("Admin raw body is not hex")
		writeText(w, http.StatusNotAcceptable, "not acceptable")
		return nil, false
	}
	return payload, true
}

func (s *Server) adminCreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w, r) {
		return
	}
	var info user.Userinfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	s.log.Debug().Str("uuid", info.UUID.String()).Msg("Creating user")
	s.users.InsertUser(info.UUID, info)
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) adminBan(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w, r) {
		return
	}
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	s.log.Info().Str("uuid", id.String()).Msg("Banning user")
	if s.sessions.Attached(id) && !s.sessions.Send(id, session.Banned()) {
		s.log.Warn().Str("uuid", id.String()).Msg("Ban order dropped, session mailbox is full")
	}
	// A minimal fragment: stamping a fresh LastUsed here would rewrite the
	// profile's timestamp on every ban.
	s.users.Ban(user.Userinfo{UUID: id, Banned: true})
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) adminUnban(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w, r) {
		return
	}
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	s.log.Info().Str("uuid", id.String()).Msg("Unbanning user")
	s.users.Unban(id)
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) adminListUsers(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w, r) {
		return
	}
	writeJSON(w, s.users.Registered())
}

func (s *Server) adminListSessions(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w, r) {
		return
	}
	writeJSON(w, s.users.Authenticated())
}

// adminUploadAvatar replaces any player's avatar, attached or not.
func (s *Server) adminUploadAvatar(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w, r) {
		return
	}
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.log.Info().Str("uuid", id.String()).Msg("Admin avatar upload")
	if err := s.avatars.Write(id, body); err != nil {
		writeText(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendEvent(id)
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) adminDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	if !s.adminGate(w, r) {
		return
	}
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	if !s.avatars.Exists(id) {
		writeText(w, http.StatusNotFound, "avatar doesn't exist")
		return
	}
	s.log.Info().Str("uuid", id.String()).Msg("Admin avatar delete")
	if err := s.avatars.Delete(id); err != nil {
		writeText(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendEvent(id)
	writeText(w, http.StatusOK, "ok")
}
