package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Store holds the live configuration behind a lock so handlers always read
// a coherent snapshot while the watcher swaps in reloads.
type Store struct {
	mu   sync.RWMutex
	cfg  Config
	path string
}

// NewStore wraps an already-parsed configuration.
func NewStore(cfg Config, path string) *Store {
	return &Store{cfg: cfg, path: path}
}

// Get returns the current snapshot.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Watch re-parses the file whenever it changes on disk and publishes the new
// snapshot. onReload, if non-nil, runs after each successful swap with the
// fresh config. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file itself: editors and
// orchestrators commonly replace the file, which retires its inode.
func (s *Store) Watch(ctx context.Context, log zerolog.Logger, onReload func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(s.path)

	var debounce *time.Timer
	reload := func() {
		cfg, err := Parse(s.path)
		if err != nil {
			log.Error().Err(err).Str("path", s.path).Msg("Config reload failed, keeping previous")
			return
		}
		s.mu.Lock()
		s.cfg = cfg
		s.mu.Unlock()
		log.Info().Str("path", s.path).Msg("Config reloaded")
		if onReload != nil {
			onReload(cfg)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Editors fire bursts of events per save; coalesce them.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}
