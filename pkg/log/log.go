package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	gethlog "github.com/ethereum/go-ethereum/log"
)

const (
	FormatTerminal = "terminal"
	FormatJSON     = "json"
	FormatLogfmt   = "logfmt"
)

// RelayLogger is a slog.Logger whose Error takes the error as a separate argument.
type RelayLogger struct {
	*slog.Logger
}

var (
	mu     sync.RWMutex
	logger = &RelayLogger{Logger: slog.New(gethlog.NewTerminalHandlerWithLevel(os.Stderr, slog.LevelInfo, false))}
)

// InitLogger replaces the process logger. Accepted formats are terminal, json and logfmt.
func InitLogger(level, format string, w io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", FormatTerminal:
		h = gethlog.NewTerminalHandlerWithLevel(w, lvl, false)
	case FormatJSON:
		h = gethlog.JSONHandlerWithLevel(w, lvl)
	case FormatLogfmt:
		h = gethlog.LogfmtHandlerWithLevel(w, lvl)
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}

	mu.Lock()
	defer mu.Unlock()
	logger = &RelayLogger{Logger: slog.New(h)}
	return nil
}

func ParseLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %v", level, err)
	}
	return lvl, nil
}

func GetLogger() *RelayLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// NewDiscardLogger is handy in tests.
func NewDiscardLogger() *RelayLogger {
	return &RelayLogger{Logger: slog.New(gethlog.LogfmtHandlerWithLevel(io.Discard, slog.LevelError))}
}

func (rl *RelayLogger) Error(msg string, err error, otherArgs ...any) {
	args := append([]any{"error", err}, otherArgs...)
	rl.Logger.Error(msg, args...)
}

func (rl *RelayLogger) WithModule(moduleName string) *RelayLogger {
	return &RelayLogger{Logger: rl.Logger.With("module", moduleName)}
}
