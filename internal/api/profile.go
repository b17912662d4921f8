package api

import (
	"errors"
	"io"
	"io/fs"
	"net/http"

	"github.com/google/uuid"
)

type equippedAvatar struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Hash  string `json:"hash"`
}

type equippedBadges struct {
	Special [6]uint8  `json:"special"`
	Pride   [25]uint8 `json:"pride"`
}

type profileResponse struct {
	UUID           string           `json:"uuid"`
	Rank           string           `json:"rank"`
	Equipped       []equippedAvatar `json:"equipped"`
	LastUsed       string           `json:"lastUsed"`
	EquippedBadges equippedBadges   `json:"equippedBadges"`
	Version        string           `json:"version"`
	Banned         bool             `json:"banned"`
}

// userInfo answers the profile lookup clients make for every player they
// see. An unknown player is a 400: a 404 draws a badge on the client.
func (s *Server) userInfo(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	info, ok := s.users.GetByUUID(id)
	if !ok {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}

	resp := profileResponse{
		UUID:     id.String(),
		Rank:     info.Rank,
		Equipped: []equippedAvatar{},
		LastUsed: info.LastUsed,
		EquippedBadges: equippedBadges{
			Special: info.Special,
			Pride:   info.Pride,
		},
		Version: info.Version,
		Banned:  info.Banned,
	}
	if s.avatars.Exists(id) {
		if hash, err := s.avatars.Hash(id); err == nil {
			resp.Equipped = append(resp.Equipped, equippedAvatar{
				ID:    "avatar",
				Owner: id.String(),
				Hash:  hash,
			})
		}
	}
	writeJSON(w, resp)
}

func (s *Server) downloadAvatar(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "bad request")
		return
	}
	data, err := s.avatars.Read(id)
	if err != nil {
		writeText(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// uploadAvatar stores the caller's avatar. The limit leaves 1 KiB of
// headroom over the configured maximum.
func (s *Server) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	info, ok := s.users.Get(r.Header.Get("token"))
	if !ok {
		writeText(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := int64(1024 + s.cfg.Get().Limitations.MaxAvatarSize*1024)
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeText(w, http.StatusRequestEntityTooLarge, "request entity too large")
			return
		}
		writeText(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.log.Info().Str("uuid", info.UUID.String()).Str("nickname", info.Nickname).Msg("Uploading avatar")
	if err := s.avatars.Write(info.UUID, body); err != nil {
		s.log.Error().Err(err).Msg("Avatar write failed")
		writeText(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) equipAvatar(w http.ResponseWriter, r *http.Request) {
	info, ok := s.users.Get(r.Header.Get("token"))
	if !ok {
		writeText(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.sendEvent(info.UUID)
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) deleteAvatar(w http.ResponseWriter, r *http.Request) {
	info, ok := s.users.Get(r.Header.Get("token"))
	if !ok {
		writeText(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.log.Info().Str("uuid", info.UUID.String()).Str("nickname", info.Nickname).Msg("Deleting avatar")
	if err := s.avatars.Delete(info.UUID); err != nil && !errors.Is(err, fs.ErrNotExist) {
		writeText(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendEvent(info.UUID)
	writeText(w, http.StatusOK, "ok")
}
