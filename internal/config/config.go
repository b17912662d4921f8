// Package config loads the TOML server configuration and keeps it fresh via
// a filesystem watcher.
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/crescent-mc/chisel/internal/user"
)

// Config is the full server configuration file.
type Config struct {
	Listen               string                  `toml:"listen"`
	Token                string                  `toml:"token"`
	LogFormat            string                  `toml:"logFormat"`
	MetricsEnabled       bool                    `toml:"metricsEnabled"`
	AssetsUpdaterEnabled bool                    `toml:"assetsUpdaterEnabled"`
	MOTD                 MOTD                    `toml:"motd"`
	AuthProviders        []user.Provider         `toml:"authProviders"`
	Limitations          Limitations             `toml:"limitations"`
	MCFolder             string                  `toml:"mcFolder"`
	AdvancedUsers        map[string]AdvancedUser `toml:"advancedUsers"`
}

// AdvancedUserList resolves the advancedUsers table into (uuid, fragment)
// pairs, skipping entries whose key is not a UUID.
func (c Config) AdvancedUserList() []user.Userinfo {
	out := make([]user.Userinfo, 0, len(c.AdvancedUsers))
	for key, entry := range c.AdvancedUsers {
		id, err := uuid.Parse(key)
		if err != nil {
			continue
		}
		out = append(out, entry.Userinfo(id))
	}
	return out
}

// MOTD controls the text block returned to clients on connect.
type MOTD struct {
	DisplayServerInfo bool   `toml:"displayServerInfo"`
	CustomText        string `toml:"customText"`
	TextUptime        string `toml:"sInfoUptime"`
	TextAuthClients   string `toml:"sInfoAuthClients"`
	DrawIndent        bool   `toml:"sInfoDrawIndent"`
}

// Limitations bounds client uploads.
type Limitations struct {
	MaxAvatarSize uint64 `toml:"maxAvatarSize"`
	MaxAvatars    uint64 `toml:"maxAvatars"`
}

// AdvancedUser is an operator-curated profile override.
type AdvancedUser struct {
	Username string    `toml:"username"`
	Banned   bool      `toml:"banned"`
	Special  [6]uint8  `toml:"special"`
	Pride    [25]uint8 `toml:"pride"`
}

// Userinfo converts the override into a profile fragment for upsert.
func (a AdvancedUser) Userinfo(id uuid.UUID) user.Userinfo {
	info := user.NewUserinfo(id)
	info.Nickname = a.Username
	info.Banned = a.Banned
	info.Special = a.Special
	info.Pride = a.Pride
	return info
}

// Default returns the built-in configuration used when no file exists.
func Default() Config {
	return Config{
		Listen:    "0.0.0.0:6665",
		LogFormat: "console",
		MOTD: MOTD{
			DisplayServerInfo: true,
			CustomText:        `[{"text":"Welcome!\n"}]`,
			TextUptime:        "Uptime: ",
			TextAuthClients:   "Authenticated: ",
			DrawIndent:        true,
		},
		AuthProviders: nil,
		Limitations: Limitations{
			MaxAvatarSize: 100,
			MaxAvatars:    10,
		},
	}
}

// Parse reads and decodes the file at path, layered over defaults.
func Parse(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
