package swpipeline

import "log/slog"

// Logger is the structured-logging type PipelineLoop writes to, aliased
// so callers outside this package don't need to import log/slog just to
// build an Options value — matches the teacher's own preference for
// log/slog over a third-party logging library (see cmd/ccapp/main.go).
type Logger = slog.Logger

func logger(l *Logger) *Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
