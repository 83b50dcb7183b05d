// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Component names used as the "component" field.
const (
	ComponentCacheManager  = "cache-manager"
	ComponentResponseCache = "response-cache"
	ComponentMonitor       = "cache-monitor"
	ComponentInvalidation  = "invalidation"
	ComponentBroadcast     = "invalidation-broadcast"
	ComponentServer        = "server"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service is added to every entry as "service" when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss/set, key, cache name)
//   - Pattern and prefix invalidations with deleted counts
//   - Invalidation events queued and applied
//   - Response cache stores and lookups
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Cache performance summaries
//   - Redis fan-out subscription established
//   - Rule files loaded
//
// Warn: Warning conditions that don't prevent operation
//   - Conflicting cache configuration for an existing name
//   - Response bodies that cannot be cached
//   - Failed publishes to other instances
//   - Dropped invalidation messages
//
// Error: Error conditions requiring attention
//   - Failed or panicking invalidation rules
//   - Invalidation queue failures
//   - Configuration errors
//
// Context Fields:
//   - component: Emitting component (see Component constants)
//   - cache: Named cache
//   - key: Cache key
//   - pattern / prefix: Invalidation selector
//   - deleted / entries: Number of removed entries
//   - event: Invalidation event key ("domain:action")
//   - entity_id: Entity the event refers to
//   - rule: Invalidation rule name
//   - hit_rate: Cache hit rate
