package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	globalLogger *slog.Logger
	once         sync.Once
	levelVar     = new(slog.LevelVar)
)

// Init configures the process logger. The sink is fixed by the first call;
// later calls only change the level, so bootstrap can log before config is loaded.
func Init(level string) {
	InitWithWriter(level, os.Stdout)
}

// InitWithWriter is Init with an explicit sink. botfleetctl logs to stderr to keep stdout for tables.
func InitWithWriter(level string, w io.Writer) {
	levelVar.Set(parseLevel(level))
	once.Do(func() {
		handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: levelVar,
		})
		globalLogger = slog.New(handler)
		slog.SetDefault(globalLogger)
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the global logger instance
func Get() *slog.Logger {
	if globalLogger == nil {
		Init("info")
	}
	return globalLogger
}

func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

func With(args ...any) *slog.Logger {
	return Get().With(args...)
}

// Component returns a child logger tagged with the owning subsystem.
func Component(name string) *slog.Logger {
	return Get().With("component", name)
}

func LogError(ctx context.Context, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	args = append(args, slog.String("error", err.Error()))
	Get().ErrorContext(ctx, msg, args...)
}
