// logging собирает *slog.Logger по окружению и, при заданном файле,
// пишет в него с ротацией через lumberjack.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/pribylovaa/go-cheffrey-client/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Константы для определения окружения.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Setup возвращает логгер и функцию закрытия вывода.
// local — текст/debug, dev — JSON/debug, prod — JSON/info.
func Setup(env string, lc config.LogConfig) (*slog.Logger, func() error) {
	var (
		out     io.Writer = os.Stderr
		closeFn           = func() error { return nil }
	)

	if lc.File != "" {
		w := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
		}
		out, closeFn = w, w.Close
	}

	return New(env, out), closeFn
}

// New настраивает slog по окружению поверх произвольного writer'а.
func New(env string, w io.Writer) *slog.Logger {
	switch env {
	case EnvDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case EnvProd:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
