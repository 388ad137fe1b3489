package types

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ncpass/internal/app/client"
	"ncpass/internal/app/client/lock"
)

type contextKey string

// ClientAppKey - ключ, под которым корневая команда кладет *client.App в контекст
const ClientAppKey contextKey = "app"

// AppFrom достает приложение из контекста команды
func AppFrom(cmd *cobra.Command) (*client.App, error) {
	app, ok := cmd.Context().Value(ClientAppKey).(*client.App)
	if !ok || app == nil {
		return nil, errors.New("приложение не инициализировано")
	}
	return app, nil
}

// ReadSecret читает строку без эха
func ReadSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("ошибка чтения: %w", err)
	}
	return string(secret), nil
}

// ReadLine читает строку с эхом
func ReadLine(prompt string) string {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

// EnsureUnlocked запрашивает PIN-код, если приложение заблокировано
func EnsureUnlocked(ctx context.Context, app *client.App) error {
	if app.LockState() == lock.Unlocked {
		return nil
	}

	pin, err := ReadSecret("PIN-код: ")
	if err != nil {
		return err
	}
	if err := app.Unlock(ctx, pin); err != nil {
		return fmt.Errorf("разблокировка не удалась: %w", err)
	}
	return nil
}

// Ready разблокирует приложение и загружает хранилище с сервера
func Ready(ctx context.Context, app *client.App) error {
	if err := EnsureUnlocked(ctx, app); err != nil {
		return err
	}
	if err := app.RefreshAll(ctx); err != nil {
		return fmt.Errorf("ошибка загрузки хранилища: %w", err)
	}
	return nil
}

// Confirm выполняет чувствительное действие: при включенном PIN-коде
// запрашивает его и завершает отложенное действие
func Confirm(ctx context.Context, app *client.App, deferred bool, err error) error {
	if err != nil {
		return err
	}
	if !deferred {
		return nil
	}

	pin, err := ReadSecret("Подтвердите PIN-кодом: ")
	if err != nil {
		return err
	}
	return app.Unlock(ctx, pin)
}
