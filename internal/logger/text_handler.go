package logger

import (
	"io"
	"log/slog"
	"time"
)

// newTextHandler returns the console handler. Timestamps are dropped because
// journald and container runtimes add their own; other time values are shown in tz.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 {
				switch a.Key {
				case slog.TimeKey:
					return slog.Attr{}
				case slog.LevelKey:
					if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= traceLevelValue {
						return slog.String(slog.LevelKey, "TRACE")
					}
					return a
				}
			}
			if t, ok := a.Value.Any().(time.Time); ok && tz != nil {
				return slog.Time(a.Key, t.In(tz))
			}
			return a
		},
	})
}
