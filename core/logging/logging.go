// Log backends shared by the wallet client and the chain server
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

const (
	// rotateThresholdKB is the size at which the debug log is rolled
	rotateThresholdKB = 10 * 1024

	// maxRolls is the number of rolled logs kept around
	maxRolls = 3
)

// Backend hands out named sub-loggers that share one writer and level
type Backend struct {
	*slog.Backend
	rotator *rotator.Rotator
	lvl     slog.Level
}

// NewFileBackend logs to a rotating file. The parent directory is created
// when missing.
func NewFileBackend(logFile string, lvl slog.Level) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, rotateThresholdKB, false, maxRolls)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	return &Backend{
		Backend: slog.NewBackend(r),
		rotator: r,
		lvl:     lvl,
	}, nil
}

// NewWriterBackend logs to w, typically os.Stdout
func NewWriterBackend(w io.Writer, lvl slog.Level) *Backend {
	return &Backend{
		Backend: slog.NewBackend(w),
		lvl:     lvl,
	}
}

// SubLogger returns a logger tagged with the subsystem name
func (b *Backend) SubLogger(name string) slog.Logger {
	logger := b.Logger(name)
	logger.SetLevel(b.lvl)
	return logger
}

// Close flushes and closes the rotating file, if there is one
func (b *Backend) Close() error {
	if b.rotator != nil {
		return b.rotator.Close()
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level
func ParseLevel(s string) (slog.Level, error) {
	lvl, ok := slog.LevelFromString(strings.ToLower(strings.TrimSpace(s)))
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}
