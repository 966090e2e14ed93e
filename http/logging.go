package http

import (
	"context"
	"io"
	"log/slog"
)

// Engine log levels. Trace sits below slog's debug, audit between info and
// warn, async error above error so it survives any sane minimum level.
const (
	LevelTrace      = slog.Level(-8)
	LevelDebug      = slog.LevelDebug
	LevelAudit      = slog.Level(2)
	LevelAsyncError = slog.Level(12)
)

var levelNames = map[slog.Level]string{
	LevelTrace:      "TRACE",
	LevelAudit:      "AUDIT",
	LevelAsyncError: "ASYNC_ERROR",
}

// ReplaceLevelNames is a slog.HandlerOptions.ReplaceAttr func that prints the
// engine levels by name instead of "DEBUG-4" and friends.
func ReplaceLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	if name, found := levelNames[level]; found {
		a.Value = slog.StringValue(name)
	}
	return a
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func logTrace(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Log(ctx, LevelTrace, msg, args...)
}

func logAudit(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Log(ctx, LevelAudit, msg, args...)
}

func logAsyncError(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Log(ctx, LevelAsyncError, msg, args...)
}
