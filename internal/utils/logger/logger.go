package logger

import (
	"fmt"
	"os"

	"golang.org/x/exp/slog"

	"ncpass/internal/utils/logger/slogpretty"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// New создает логгер в зависимости от окружения
func New(env string) *slog.Logger {
	return build(env, envLevel(env))
}

// NewWithLevel создает логгер окружения с явно заданным уровнем.
// Пустой уровень означает уровень окружения по умолчанию.
func NewWithLevel(env, level string) (*slog.Logger, error) {
	if level == "" {
		return New(env), nil
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("неизвестный уровень логирования %q: %w", level, err)
	}
	return build(env, l), nil
}

func envLevel(env string) slog.Level {
	switch env {
	case EnvLocal, "", EnvDev:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func build(env string, level slog.Level) *slog.Logger {
	switch env {
	case EnvLocal, "":
		return setupPrettySlog(level)
	default:
		return slog.New(
			slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		)
	}
}

// Discard возвращает логгер, который ничего не пишет (для тестов)
func Discard() *slog.Logger {
	return slog.New(slogpretty.Discard{})
}

func setupPrettySlog(level slog.Level) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: level,
		},
	}

	handler := opts.NewPrettyHandler(os.Stderr)

	return slog.New(handler)
}
