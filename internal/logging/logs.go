package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Printf-style helpers over the global zerolog logger. Call sites prefix messages with
// "pkg.Type.method" so lines stay greppable.

func Tracef(format string, args ...any) { log.Trace().Msgf(format, args...) }

func Debugf(format string, args ...any) { log.Debug().Msgf(format, args...) }

func Infof(format string, args ...any) { log.Info().Msgf(format, args...) }

func Warnf(format string, args ...any) { log.Warn().Msgf(format, args...) }

func Errorf(format string, args ...any) { log.Error().Msgf(format, args...) }

// Fatalf logs and exits the process with status 1.
func Fatalf(format string, args ...any) { log.Fatal().Msgf(format, args...) }

// Logf writes regardless of level; used by tests to narrate what they exercised.
func Logf(format string, args ...any) { log.Log().Msgf(format, args...) }

// Component returns a sub-logger tagged with the owning component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
