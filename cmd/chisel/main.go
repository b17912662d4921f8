package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/crescent-mc/chisel/internal/api"
	"github.com/crescent-mc/chisel/internal/auth"
	"github.com/crescent-mc/chisel/internal/avatar"
	"github.com/crescent-mc/chisel/internal/config"
	"github.com/crescent-mc/chisel/internal/logging"
	"github.com/crescent-mc/chisel/internal/mchook"
	"github.com/crescent-mc/chisel/internal/metrics"
	"github.com/crescent-mc/chisel/internal/session"
	"github.com/crescent-mc/chisel/internal/user"
	"github.com/crescent-mc/chisel/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chisel: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	start := time.Now()

	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	cfg, err := config.Parse(env.ConfigPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", env.ConfigPath, err)
	}

	log, err := logging.New(logging.Options{
		Level:  env.LogLevel,
		Format: cfg.LogFormat,
		Dir:    env.LogsDir,
	})
	if err != nil {
		return err
	}
	log.Info().Str("version", api.Release).Str("listen", cfg.Listen).Msg("Starting up")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	avatars, err := avatar.NewStore(env.AvatarsDir)
	if err != nil {
		return err
	}

	users := user.NewManager()
	sessions := session.NewRegistry()
	statePings := session.NewStatePings()
	store := config.NewStore(cfg, env.ConfigPath)

	applyAdvancedUsers(log, store.Get(), users, sessions)
	go users.RunJanitor(ctx, log)
	go func() {
		err := store.Watch(ctx, log, func(fresh config.Config) {
			applyAdvancedUsers(log, fresh, users, sessions)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Config watcher stopped")
		}
	}()

	if folder := cfg.MCFolder; folder != "" {
		if _, err := os.Stat(folder); err == nil {
			hook := mchook.New(log, folder, users, sessions)
			go func() {
				if err := hook.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("Minecraft ban hook stopped")
				}
			}()
		} else {
			log.Warn().Str("folder", folder).Msg("mcFolder doesn't exist, ban sync disabled")
		}
	}

	var reg *metrics.Registry
	if cfg.MetricsEnabled {
		reg = metrics.NewRegistry()
	}

	verifier := api.OrchestratorVerifier{
		Orchestrator: auth.NewOrchestrator(nil, log),
		Config:       store,
	}
	wsHandler := ws.NewHandler(log, users, sessions, statePings, reg)
	server := api.NewServer(log, store, users, sessions, avatars, verifier, reg, start)
	if _, err := os.Stat(env.AssetsDir); err == nil {
		server.ServeAssets(env.AssetsDir)
	}
	if cfg.AssetsUpdaterEnabled {
		log.Warn().Msg("assetsUpdaterEnabled is set, but the updater is not part of this server")
	}

	httpServer := &http.Server{
		Addr:        cfg.Listen,
		Handler:     server.Routes(wsHandler),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("Listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown error")
	}
	log.Info().Msg("Bye")
	return nil
}

// applyAdvancedUsers pushes the operator-curated overrides into the user
// manager; a banned override tears down the live session too.
func applyAdvancedUsers(log zerolog.Logger, cfg config.Config, users *user.Manager, sessions *session.Registry) {
	for _, info := range cfg.AdvancedUserList() {
		users.InsertUser(info.UUID, info)
		if info.Banned {
			users.Ban(info)
			if sessions.Attached(info.UUID) {
				sessions.Send(info.UUID, session.Banned())
			}
		} else {
			users.Unban(info.UUID)
		}
	}
}
