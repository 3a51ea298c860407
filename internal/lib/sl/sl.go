// Package sl содержит вспомогательные атрибуты для логгера slog.
package sl

import (
	"io"
	"log/slog"
)

// Err возвращает атрибут "error" с текстом ошибки. Для nil-ошибки значение пустое.
//
//	log.Error("failed to send mail", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Op возвращает атрибут с именем операции.
func Op(op string) slog.Attr {
	return slog.String("op", op)
}

// Discard логгер, который ничего не пишет. Используется в тестах и CLI без вывода.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

// New логгер для окружения env: текст с уровнем debug локально, JSON в остальных окружениях.
func New(env string, w io.Writer) *slog.Logger {
	switch env {
	case "local", "":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case "dev":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}
