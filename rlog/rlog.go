// Package rlog centralizes structured logging for ragforge on top of
// zerolog. Components pull a scoped logger rather than writing to a bare
// package-level global, so tests can redirect output per-suite.
package rlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide base logger. Initialize configures it; until
// then it defaults to an Info-level JSON logger writing to stderr so
// library consumers get reasonable output with zero setup.
var Log zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	Log = zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Str("service", "ragforge").Logger()
}

// Initialize reconfigures the global logger. pretty selects a human
// readable console writer; otherwise JSON lines are emitted.
func Initialize(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var w zerolog.ConsoleWriter
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = log.Output(w)
		Log = log.With().Str("service", "ragforge").Logger()
		return
	}
	Log = zerolog.New(os.Stderr).With().Timestamp().Str("service", "ragforge").Logger()
}

// component scopes the global logger under a named subsystem.
func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

func Plugin() *zerolog.Logger        { return component("plugin") }
func Pipeline() *zerolog.Logger      { return component("pipeline") }
func Marketplace() *zerolog.Logger   { return component("marketplace") }
func Observability() *zerolog.Logger { return component("observability") }
func Sandbox() *zerolog.Logger       { return component("sandbox") }
func RateLimit() *zerolog.Logger     { return component("ratelimit") }
