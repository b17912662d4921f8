// Package user tracks the three authentication maps of the service:
// pending handshakes, live session tokens, and registered profiles.
package user

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRank marks a profile that no source has ranked yet.
	DefaultRank = "default"
	// DefaultVersion is reported for profiles created before any client
	// connected with a real user agent.
	DefaultVersion = "0.1.4+1.20.1"
	// UnknownProviderName marks a profile not vouched for by any external
	// validator (admin-created or config-hydrated).
	UnknownProviderName = "Unknown"
)

// Provider identifies the external session validator that vouched for a
// profile.
type Provider struct {
	Name string `json:"name" toml:"name"`
	URL  string `json:"url" toml:"url"`
}

// Empty reports whether the provider is the Unknown placeholder.
func (p Provider) Empty() bool {
	return p.Name == "" || p.Name == UnknownProviderName
}

// Userinfo is the profile record kept per player UUID. The same UUID may be
// hydrated from several sources (config, Minecraft ban list, live handshake)
// in any order; see Manager for the merge rules.
type Userinfo struct {
	UUID         uuid.UUID `json:"uuid"`
	Nickname     string    `json:"username"`
	Rank         string    `json:"rank"`
	LastUsed     string    `json:"lastUsed"`
	AuthProvider Provider  `json:"authProvider"`
	Token        string    `json:"token,omitempty"`
	Version      string    `json:"version"`
	Banned       bool      `json:"banned"`
	Special      [6]uint8  `json:"special"`
	Pride        [25]uint8 `json:"pride"`
}

// NewUserinfo returns a profile with the original defaults filled in.
func NewUserinfo(id uuid.UUID) Userinfo {
	return Userinfo{
		UUID:         id,
		Rank:         DefaultRank,
		LastUsed:     time.Now().UTC().Format(time.RFC3339),
		AuthProvider: Provider{Name: UnknownProviderName},
		Version:      DefaultVersion,
	}
}

// merge applies the upsert rules: each source overrides only the fields it
// authoritatively owns, everything else is preserved.
func merge(dst *Userinfo, src Userinfo) {
	dst.UUID = src.UUID
	if src.Nickname != "" {
		dst.Nickname = src.Nickname
	}
	if src.Rank != "" && src.Rank != DefaultRank {
		dst.Rank = src.Rank
	}
	if src.Token != "" {
		dst.Token = src.Token
	}
	if src.Version != "" && src.Version != DefaultVersion {
		dst.Version = src.Version
	}
	if !src.AuthProvider.Empty() {
		dst.AuthProvider = src.AuthProvider
	}
	if src.LastUsed != "" {
		dst.LastUsed = src.LastUsed
	}
	if src.Special != ([6]uint8{}) {
		dst.Special = src.Special
	}
	if src.Pride != ([25]uint8{}) {
		dst.Pride = src.Pride
	}
	if dst.Rank == "" {
		dst.Rank = DefaultRank
	}
	if dst.Version == "" {
		dst.Version = DefaultVersion
	}
	if dst.AuthProvider.Name == "" {
		dst.AuthProvider.Name = UnknownProviderName
	}
}
