// Package logging builds the slog loggers used across mirepoix.
//
// Human output goes through tint with coloured level names; JSON output uses
// the standard slog JSON handler. Library packages take a *slog.Logger and
// fall back to Discard when none is supplied.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent
)

// ParseLevel maps debug|info|warn|error|silent (any case) to a Level. The
// empty string is LevelSilent.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "", "silent", "none":
		return LevelSilent, nil
	}
	return LevelSilent, fmt.Errorf("logging: unknown level %q", s)
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "silent"
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.Level(100)
}

func rewriteLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	var text string
	switch level {
	case slog.LevelDebug:
		text = "DBG"
	case slog.LevelInfo:
		text = color.GreenString("INF")
	case slog.LevelWarn:
		text = color.YellowString("WRN")
	case slog.LevelError:
		text = color.RedString("ERR")
	default:
		text = level.String()
	}
	a.Value = slog.StringValue(text)
	return a
}

// New returns a human-readable logger writing to w.
func New(w io.Writer, level Level) *slog.Logger {
	if level == LevelSilent {
		return Discard()
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:       level.slogLevel(),
		TimeFormat:  time.TimeOnly,
		NoColor:     color.NoColor,
		ReplaceAttr: rewriteLevel,
	}))
}

// NewJSON returns a JSON logger writing to w.
func NewJSON(w io.Writer, level Level) *slog.Logger {
	if level == LevelSilent {
		return Discard()
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level.slogLevel()}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
