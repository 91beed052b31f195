// Package tplog provides the structured logging used throughout
// taskpool: a small Logger interface over zerolog, configured per Pool
// rather than through a package-level global.
package tplog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors the handful of levels the pool actually emits at.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Logger is the logging surface a Pool, Worker Handler, and transport
// adapter log through. Fields attach structured context (worker id,
// request id, method name) the way zerolog's With() chains do.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, err error, fields map[string]any)
	With(fields map[string]any) Logger
}

// Config configures a zerolog-backed Logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// New builds a Logger from cfg. It returns a value scoped to the
// caller (typically one Pool) instead of assigning a package-level
// global, so multiple Pools in one process can run independent log
// configurations.
func New(cfg Config) Logger {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var zl zerolog.Logger
	if cfg.JSONOutput {
		zl = zerolog.New(output).Level(level).With().Timestamp().Logger()
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).Level(level).With().Timestamp().Logger()
	}
	return zerologLogger{zl: zl}
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l zerologLogger) Debug(msg string, fields map[string]any) { l.event(l.zl.Debug(), fields, msg) }
func (l zerologLogger) Info(msg string, fields map[string]any)  { l.event(l.zl.Info(), fields, msg) }
func (l zerologLogger) Warn(msg string, fields map[string]any)  { l.event(l.zl.Warn(), fields, msg) }

func (l zerologLogger) Error(msg string, err error, fields map[string]any) {
	evt := l.zl.Error()
	if err != nil {
		evt = evt.Err(err)
	}
	l.event(evt, fields, msg)
}

func (l zerologLogger) With(fields map[string]any) Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return zerologLogger{zl: ctx.Logger()}
}

func (l zerologLogger) event(evt *zerolog.Event, fields map[string]any, msg string) {
	for k, v := range fields {
		evt = evt.Interface(k, v)
	}
	evt.Msg(msg)
}

// Noop is a Logger that discards everything, the default for a Pool
// constructed without an explicit logging option.
var Noop Logger = noopLogger{}

type noopLogger struct{}

func (noopLogger) Debug(string, map[string]any)        {}
func (noopLogger) Info(string, map[string]any)         {}
func (noopLogger) Warn(string, map[string]any)         {}
func (noopLogger) Error(string, error, map[string]any) {}
func (l noopLogger) With(map[string]any) Logger        { return l }
