package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"

	"github.com/Tutortoise/deepfake-detector/config"
)

// Logger owns the rotating log files behind the process-wide slog default.
type Logger struct {
	app    *lumberjack.Logger
	access *lumberjack.Logger
}

// New installs a JSON slog handler writing to stdout and LOG_DIR/app.log.
func New(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{
		app:    rotating(filepath.Join(cfg.LogDirectory, "app.log")),
		access: rotating(filepath.Join(cfg.LogDirectory, "access.log")),
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(io.MultiWriter(os.Stdout, l.app), &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	return l, nil
}

func rotating(filename string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     7, // days
		Compress:   true,
	}
}

// Access is the writer for HTTP access log lines.
func (l *Logger) Access() io.Writer {
	return l.access
}

func (l *Logger) Close() error {
	errApp := l.app.Close()
	errAccess := l.access.Close()
	if errApp != nil {
		return errApp
	}
	return errAccess
}
