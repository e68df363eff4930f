package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once

	mu         sync.Mutex
	components = map[string]*slog.Logger{}

	// logDir is where per-component log files are written.
	logDir = "logs"
)

// SetDir changes where per-component log files are written. Call before the
// first Component lookup; later calls only affect new components.
func SetDir(dir string) {
	mu.Lock()
	defer mu.Unlock()
	if dir != "" {
		logDir = dir
	}
}

// levelFromEnv maps LOG_LEVEL to a slog.Level, defaulting to Info.
func levelFromEnv() slog.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the default logger with a JSON handler writing to os.Stdout.
// It ensures that the logger is initialized only once.
func Init() {
	once.Do(func() {
		defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: levelFromEnv(),
		}))
		slog.SetDefault(defaultLogger)
	})
}

// Get returns the initialized default logger.
// It calls Init() to ensure the logger is ready before returning it.
func Get() *slog.Logger {
	Init()
	return defaultLogger
}

// Component returns a logger that writes JSON lines to logs/<name>.log with
// rotation at 10 MB and 30 retained files, in addition to stdout. Loggers are
// cached per component name.
func Component(name string) *slog.Logger {
	Init()
	mu.Lock()
	defer mu.Unlock()
	if l, ok := components[name]; ok {
		return l
	}
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, name+".log"),
		MaxSize:    10, // megabytes
		MaxBackups: 30,
	}
	w := io.MultiWriter(os.Stdout, rotated)
	l := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: levelFromEnv(),
	})).With("component", name)
	components[name] = l
	return l
}

// Info logs an informational message using the default logger.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message using the default logger.
func Error(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	Get().Error(msg, args...)
}

// Debug logs a debug message using the default logger.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}
