// Package actorlog is the node-wide zerolog setup: one global logger
// configured once from the environment, with per-component children handed
// out to every package that needs to log.
package actorlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Init configures the base logger from LOG_LEVEL and LOG_FORMAT. Call it
// once at process startup, before any package calls New.
func Init() {
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = zerolog.InfoLevel
	}

	if os.Getenv("LOG_FORMAT") == "json" {
		base = zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
		return
	}
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(level)
}

// New returns a child logger tagged with the given component name, e.g.
// actorlog.New("sender") or actorlog.New("receiver").
func New(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// WithNode tags a logger with the owning node's name, used by components
// that want every line attributable to a node in a multi-node test run.
func WithNode(log zerolog.Logger, nodeName string) zerolog.Logger {
	return log.With().Str("node", nodeName).Logger()
}
