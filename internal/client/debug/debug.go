package debug

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// DefaultPath is where logs go when debug mode is on; stdout belongs to the TUI.
const DefaultPath = "debug.log"

// Logger returns a file-backed logger when enabled and a no-op logger
// otherwise. The returned closer must be called on exit.
func Logger(enabled bool, path string) (zerolog.Logger, io.Closer, error) {
	if !enabled {
		return zerolog.Nop(), io.NopCloser(nil), nil
	}
	if path == "" {
		path = DefaultPath
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return zerolog.Nop(), io.NopCloser(nil), err
	}
	return New(f, zerolog.DebugLevel), f, nil
}

// New builds a timestamped logger on w.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
