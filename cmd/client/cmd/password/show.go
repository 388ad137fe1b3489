// cmd/client/cmd/password/show.go
package password

import (
	"fmt"

	"github.com/spf13/cobra"

	"ncpass/cmd/client/cmd/types"
)

var reveal bool

var ShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Показать запись",
	Long: `Показывает запись хранилища.

При включенной настройке secure_screen пароль и секретные поля скрыты,
пока не указан флаг --reveal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := types.Ready(ctx, app); err != nil {
			return err
		}

		p, err := app.Password(args[0])
		if err != nil {
			return fmt.Errorf("ошибка получения записи: %w", err)
		}

		printPassword(p, reveal || !app.Preferences().SecureScreen)
		return nil
	},
}

func init() {
	ShowCmd.Flags().BoolVar(&reveal, "reveal", false, "показать пароль")
}
