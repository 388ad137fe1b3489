package auth

import (
	"github.com/spf13/cobra"
)

// AuthCmd - родительская команда для входа и выхода из аккаунта Nextcloud
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Управление сессией",
	Long:  `Вход в аккаунт Nextcloud, выход и просмотр текущей сессии.`,
}
