// Package logging builds the process logger: leveled zerolog output to the
// terminal plus a dated file under the logs directory.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Options selects output shape and level.
type Options struct {
	// Level is a zerolog level name ("debug", "info", ...).
	Level string
	// Format is "console" or "json"; console is the default.
	Format string
	// Dir receives the dated log file. Empty disables the file sink.
	Dir string
}

// New constructs the logger. File sink failures degrade to terminal-only
// logging rather than aborting startup.
func New(opts Options) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level %q: %w", opts.Level, err)
	}

	var terminal io.Writer = os.Stdout
	if opts.Format != "json" {
		terminal = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{terminal}
	if opts.Dir != "" {
		if file, err := openDated(opts.Dir); err == nil {
			writers = append(writers, file)
		}
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return log, nil
}

// openDated creates dir and opens the first free YYYY-MM-DD.NNNN.log slot,
// so restarts on the same day get distinct files.
func openDated(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	day := time.Now().Format("2006-01-02")
	for n := 0; n < 10000; n++ {
		name := filepath.Join(dir, fmt.Sprintf("%s.%04d.log", day, n))
		file, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no free log slot in %s for %s", dir, day)
}
