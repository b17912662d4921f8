// Package mchook mirrors the Minecraft server's ban list into the user
// manager by polling banned-players.json.
package mchook

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crescent-mc/chisel/internal/session"
	"github.com/crescent-mc/chisel/internal/user"
)

// PollInterval is how often the ban list is re-read.
const PollInterval = 10 * time.Second

// BannedPlayer is one entry of banned-players.json. The file carries more
// fields; only these matter here.
type BannedPlayer struct {
	UUID uuid.UUID `json:"uuid"`
	Name string    `json:"name"`
}

// userinfo builds the ban fragment. LastUsed stays empty so the merge keeps
// the profile's existing timestamp.
func (p BannedPlayer) userinfo() user.Userinfo {
	return user.Userinfo{UUID: p.UUID, Nickname: p.Name, Banned: true}
}

// Hook watches one Minecraft folder.
type Hook struct {
	log      zerolog.Logger
	path     string
	users    *user.Manager
	sessions *session.Registry
	interval time.Duration
}

// New builds a hook for mcFolder/banned-players.json.
func New(log zerolog.Logger, mcFolder string, users *user.Manager, sessions *session.Registry) *Hook {
	return &Hook{
		log:      log,
		path:     filepath.Join(mcFolder, "banned-players.json"),
		users:    users,
		sessions: sessions,
		interval: PollInterval,
	}
}

// Run applies the current list wholesale, then polls for diffs until ctx is
// done. A missing or unparsable file on startup is fatal; later parse
// failures are logged and the previous list stays in effect.
func (h *Hook) Run(ctx context.Context) error {
	current, err := h.read()
	if err != nil {
		return err
	}
	if len(current) > 0 {
		h.log.Info().Str("players", names(current)).Msg("Banned players")
	}
	for _, player := range current {
		h.ban(player)
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fresh, err := h.read()
			if err != nil {
				h.log.Error().Err(err).Msg("Can't read banned-players.json")
				continue
			}
			h.apply(current, fresh)
			current = fresh
		}
	}
}

func (h *Hook) read() ([]BannedPlayer, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, err
	}
	var list []BannedPlayer
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// apply diffs the previous list against the fresh one and bans/unbans the
// difference.
func (h *Hook) apply(old, fresh []BannedPlayer) {
	if slices.Equal(old, fresh) {
		return
	}
	h.log.Info().Msg("Minecraft ban list modification detected")

	var banned, unbanned []BannedPlayer
	for _, player := range old {
		if !slices.Contains(fresh, player) {
			h.users.Unban(player.UUID)
			unbanned = append(unbanned, player)
		}
	}
	for _, player := range fresh {
		if !slices.Contains(old, player) {
			h.ban(player)
			banned = append(banned, player)
		}
	}
	h.log.Info().Str("banned", names(banned)).Str("unbanned", names(unbanned)).Msg("Ban list changes")
}

func (h *Hook) ban(player BannedPlayer) {
	if h.sessions.Attached(player.UUID) && !h.sessions.Send(player.UUID, session.Banned()) {
		h.log.Warn().Str("uuid", player.UUID.String()).Msg("Ban order dropped, session mailbox is full")
	}
	h.users.Ban(player.userinfo())
}

func names(list []BannedPlayer) string {
	if len(list) == 0 {
		return "-"
	}
	out := make([]string, len(list))
	for i, player := range list {
		out[i] = player.Name
	}
	return strings.Join(out, ", ")
}
