package auth

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ncpass/cmd/client/cmd/types"
)

var forceLogout bool

var LogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Выйти из аккаунта",
	Long: `Отзывает пароль приложения на сервере и удаляет локальную сессию.

При включенном PIN-коде выход нужно подтвердить. Если сервер недоступен,
флаг --force завершает сессию только локально.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		deferred, err := app.AttemptLogout(ctx, forceLogout)
		if err := types.Confirm(ctx, app, deferred, err); err != nil {
			return fmt.Errorf("ошибка выхода: %w", err)
		}

		color.Green("✅ Выход выполнен")
		return nil
	},
}

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Показать текущую сессию",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}

		server, login, ok := app.Session()
		if !ok {
			fmt.Println("Вход не выполнен")
			return nil
		}

		fmt.Printf("Сервер:     %s\n", server)
		fmt.Printf("Логин:      %s\n", login)
		fmt.Printf("Блокировка: %s\n", app.LockState())
		return nil
	},
}

func init() {
	LogoutCmd.Flags().BoolVarP(&forceLogout, "force", "f", false, "выйти локально, даже если сервер недоступен")
}
