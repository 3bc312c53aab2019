// Package logging provides centralized zerolog-based logging for adflow.
//
// # Quick start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("batch_id", id).Msg("batch started")
//	logging.Ctx(ctx).Warn().Err(err).Msg("adapter retry")
//
// Always terminate a log chain with .Msg() or .Send(); a chain left
// unterminated is silently dropped.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the global logger's level, output format, and caller info.
type Config struct {
	// Level is one of trace, debug, info, warn, error (default: info).
	Level string
	// Format is "json" (production) or "console" (development).
	Format string
	// Caller includes the calling file:line in each entry.
	Caller bool
}

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Init configures the global logger. Call once at process startup.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer io.Writer = os.Stderr
	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(writer).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}

	mu.Lock()
	logger = ctx.Logger().Level(level)
	mu.Unlock()
}

// Logger returns the current global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// correlationKey is the context key carrying a per-job correlation ID.
type correlationKey struct{}

// WithCorrelationID returns a context that tagged loggers obtained via
// Ctx(ctx) will stamp with the given ID (e.g. a batch_id or report spec).
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// Ctx returns a logger enriched with the correlation ID carried on ctx, if
// any, falling back to the plain global logger otherwise.
func Ctx(ctx context.Context) zerolog.Logger {
	l := Logger()
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return l.With().Str("correlation_id", id).Logger()
	}
	return l
}

// Debug logs at debug level using the global logger.
func Debug() *zerolog.Event { return logEvent(zerolog.DebugLevel) }

// Info logs at info level using the global logger.
func Info() *zerolog.Event { return logEvent(zerolog.InfoLevel) }

// Warn logs at warn level using the global logger.
func Warn() *zerolog.Event { return logEvent(zerolog.WarnLevel) }

// Error logs at error level using the global logger.
func Error() *zerolog.Event { return logEvent(zerolog.ErrorLevel) }

func logEvent(level zerolog.Level) *zerolog.Event {
	l := Logger()
	switch level {
	case zerolog.DebugLevel:
		return l.Debug()
	case zerolog.WarnLevel:
		return l.Warn()
	case zerolog.ErrorLevel:
		return l.Error()
	default:
		return l.Info()
	}
}
