// Package diag is the diagnostic sink shared by the class-file decoder and
// the class loader. Severities follow the JVM's traditional logging scale
// and are carried on top of log/slog.
package diag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Level is a diagnostic severity. Lower values are more severe.
type Level int

const (
	Severe Level = iota + 1
	Warning
	Class
	Info
	Fine
	Finest
)

var levelNames = map[Level]string{
	Severe:  "SEVERE",
	Warning: "WARNING",
	Class:   "CLASS",
	Info:    "INFO",
	Fine:    "FINE",
	Finest:  "FINEST",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// slogLevel maps a diagnostic level onto the slog scale, where larger
// values are more severe.
func (l Level) slogLevel() slog.Level {
	switch l {
	case Severe:
		return slog.LevelError
	case Warning:
		return slog.LevelWarn
	case Class:
		return slog.LevelInfo + 2
	case Info:
		return slog.LevelInfo
	case Fine:
		return slog.LevelDebug
	default:
		return slog.LevelDebug - 4
	}
}

// ParseLevel accepts the level names case-insensitively.
func ParseLevel(s string) (Level, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == want {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Sink accepts diagnostics. Implementations must not block the caller for
// long and must be safe for concurrent use.
type Sink interface {
	Log(level Level, msg string, args ...any)
	Enabled(level Level) bool
	With(args ...any) Sink
}

// Logger is a Sink backed by a slog.Logger.
type Logger struct {
	l *slog.Logger
}

// New returns a Logger writing text records to w. Records below level are
// dropped. The time field is rendered as seconds elapsed since New.
func New(w io.Writer, level Level) *Logger {
	start := time.Now()
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level.slogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				elapsed := time.Since(start).Seconds()
				return slog.String("elapsed", fmt.Sprintf("%0.3fs", elapsed))
			case slog.LevelKey:
				if lv, ok := a.Value.Any().(slog.Level); ok {
					return slog.String(slog.LevelKey, levelFromSlog(lv).String())
				}
			}
			return a
		},
	})
	return &Logger{l: slog.New(h)}
}

// FromSlog wraps an existing slog.Logger.
func FromSlog(l *slog.Logger) *Logger {
	return &Logger{l: l}
}

func levelFromSlog(lv slog.Level) Level {
	switch {
	case lv >= slog.LevelError:
		return Severe
	case lv >= slog.LevelWarn:
		return Warning
	case lv > slog.LevelInfo:
		return Class
	case lv == slog.LevelInfo:
		return Info
	case lv >= slog.LevelDebug:
		return Fine
	default:
		return Finest
	}
}

func (lg *Logger) Log(level Level, msg string, args ...any) {
	lg.l.Log(context.Background(), level.slogLevel(), msg, args...)
}

func (lg *Logger) Enabled(level Level) bool {
	return lg.l.Enabled(context.Background(), level.slogLevel())
}

func (lg *Logger) With(args ...any) Sink {
	return &Logger{l: lg.l.With(args...)}
}

type discard struct{}

func (discard) Log(Level, string, ...any) {}
func (discard) Enabled(Level) bool        { return false }
func (d discard) With(...any) Sink        { return d }

// Discard drops every diagnostic.
var Discard Sink = discard{}

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}
