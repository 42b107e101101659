// Package jlog is JungleDB's structured logger, a thin wrapper over
// zerolog shared by the engine, its backends and its command-line tools.
package jlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger every component logs through.
var Logger zerolog.Logger

// Level names a logging verbosity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the global Logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init (re)configures the global Logger. Callers that never call Init get a
// console logger at Info level writing to stdout.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func init() {
	Init(Config{Level: InfoLevel})
}

// WithComponent creates a child logger tagging which engine component
// emitted the entry, e.g. "objectstore" or "boltbackend".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithStore creates a child logger carrying an object store name.
func WithStore(store string) zerolog.Logger {
	return Logger.With().Str("store", store).Logger()
}

// WithTxID creates a child logger carrying a transaction identifier.
func WithTxID(txID string) zerolog.Logger {
	return Logger.With().Str("tx_id", txID).Logger()
}

// WithIndex creates a child logger carrying a secondary index name.
func WithIndex(index string) zerolog.Logger {
	return Logger.With().Str("index", index).Logger()
}

func Info(msg string) { Logger.Info().Msg(msg) }

func Debug(msg string) { Logger.Debug().Msg(msg) }

func Warn(msg string) { Logger.Warn().Msg(msg) }

func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) { Logger.Error().Err(err).Msg(format) }
