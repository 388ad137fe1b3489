// cmd/client/cmd/auth/login.go
package auth

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ncpass/cmd/client/cmd/types"
	"ncpass/internal/domain/vault"
)

var (
	serverURL       string
	loginName       string
	withAppPassword bool
)

var LoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Войти в аккаунт Nextcloud",
	Long: `Вход в аккаунт Nextcloud.

По умолчанию используется Login Flow v2: команда печатает ссылку, которую нужно
открыть в браузере и подтвердить доступ. Ожидание длится около минуты.

С флагом --app-password вход выполняется с уже выданным паролем приложения.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if serverURL == "" {
			serverURL = types.ReadLine("Адрес сервера: ")
		}

		if withAppPassword {
			if loginName == "" {
				loginName = types.ReadLine("Логин: ")
			}
			appPassword, err := types.ReadSecret("Пароль приложения: ")
			if err != nil {
				return err
			}

			if err := app.LoginWithAppPassword(ctx, vault.Credentials{
				Server:      serverURL,
				LoginName:   loginName,
				AppPassword: appPassword,
			}); err != nil {
				return fmt.Errorf("ошибка входа: %w", err)
			}
			color.Green("✅ Вход выполнен")
			return nil
		}

		flow, err := app.AttemptLogin(ctx, serverURL)
		if err != nil {
			return fmt.Errorf("ошибка начала входа: %w", err)
		}

		fmt.Println("Откройте ссылку в браузере и подтвердите доступ:")
		fmt.Println()
		color.Cyan("  %s", flow.LoginURL)
		fmt.Println()
		fmt.Println("Ожидание подтверждения...")

		if err := app.CompleteLogin(ctx, flow); err != nil {
			return fmt.Errorf("вход не выполнен: %w", err)
		}

		server, login, _ := app.Session()
		color.Green("✅ Вход выполнен: %s@%s", login, server)
		return nil
	},
}

func init() {
	LoginCmd.Flags().StringVarP(&serverURL, "server", "s", "", "адрес сервера Nextcloud")
	LoginCmd.Flags().StringVarP(&loginName, "user", "u", "", "логин (только с --app-password)")
	LoginCmd.Flags().BoolVar(&withAppPassword, "app-password", false, "войти с готовым паролем приложения")
}
