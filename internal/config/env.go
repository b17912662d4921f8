package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds process-level settings read from the environment. A .env file in
// the working directory is honored when present.
type Env struct {
	LogLevel   string `env:"LOGGER" envDefault:"info"`
	ConfigPath string `env:"CONFIG" envDefault:"Config.toml"`
	LogsDir    string `env:"LOGS_FOLDER" envDefault:"logs"`
	AssetsDir  string `env:"ASSETS_FOLDER" envDefault:"data/assets"`
	AvatarsDir string `env:"AVATARS_FOLDER" envDefault:"data/avatars"`
}

// LoadEnv loads .env (if any) and parses the environment.
func LoadEnv() (Env, error) {
	_ = godotenv.Load()
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}
