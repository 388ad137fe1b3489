// cmd/client/cmd/password/update.go
package password

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ncpass/cmd/client/cmd/types"
	"ncpass/internal/domain/vault"
)

var updateFields fields

var UpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Изменить запись",
	Long: `Изменяет запись. Меняются только поля, переданные флагами.

При смене URL иконка загружается заново.`,
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

		current, err := app.Password(args[0])
		if err != nil {
			return fmt.Errorf("ошибка получения записи: %w", err)
		}

		req := vault.PasswordRequestFrom(current)
		flags := cmd.Flags()
		f := &updateFields

		if flags.Changed("label") {
			req.Label = f.label
		}
		if flags.Changed("username") {
			req.Username = f.username
		}
		if flags.Changed("url") {
			req.URL = f.url
		}
		if flags.Changed("notes") {
			req.Notes = f.notes
		}
		if flags.Changed("folder") {
			req.Folder = f.folder
		}
		if flags.Changed("tag") {
			req.TagIDs = f.tags
		}
		if flags.Changed("favorite") {
			req.Favorite = f.favorite
		}

		secret, err := f.secret(ctx, app, false)
		if err != nil {
			return err
		}
		if secret != "" {
			req.Password = secret
		}

		p, err := app.UpdatePassword(ctx, current.ID, req)
		if err != nil {
			return fmt.Errorf("ошибка изменения записи: %w", err)
		}

		color.Green("✅ Запись '%s' изменена", p.Label)
		return nil
	},
}

var DeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Удалить запись",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := types.Ready(ctx, app); err != nil {
			return err
		}

		if err := app.DeletePassword(ctx, args[0]); err != nil {
			return fmt.Errorf("ошибка удаления записи: %w", err)
		}

		color.Green("✅ Запись удалена")
		return nil
	},
}

var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Сгенерировать пароль на сервере",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := types.EnsureUnlocked(ctx, app); err != nil {
			return err
		}

		generated, err := app.GeneratePassword(ctx)
		if err != nil {
			return fmt.Errorf("ошибка генерации пароля: %w", err)
		}

		fmt.Println(generated)
		return nil
	},
}

func init() {
	updateFields.register(UpdateCmd)
}
