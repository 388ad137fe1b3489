// cmd/client/cmd/password/create.go
package password

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ncpass/cmd/client/cmd/types"
	"ncpass/internal/app/client"
	"ncpass/internal/domain/vault"
)

// fields - флаги, общие для create и update
type fields struct {
	label    string
	username string
	password string
	url      string
	notes    string
	folder   string
	tags     []string
	favorite bool
	generate bool
}

func (f *fields) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.label, "label", "l", "", "название записи")
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "логин")
	cmd.Flags().StringVar(&f.password, "password", "", "пароль")
	cmd.Flags().StringVar(&f.url, "url", "", "URL сайта")
	cmd.Flags().StringVar(&f.notes, "notes", "", "заметки")
	cmd.Flags().StringVar(&f.folder, "folder", "", "id папки")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "id тега (можно указать несколько раз)")
	cmd.Flags().BoolVar(&f.favorite, "favorite", false, "добавить в избранное")
	cmd.Flags().BoolVarP(&f.generate, "generate", "g", false, "сгенерировать пароль на сервере")
}

// secret возвращает пароль из флагов, генерирует его или запрашивает без эха
func (f *fields) secret(ctx context.Context, app *client.App, required bool) (string, error) {
	switch {
	case f.generate:
		generated, err := app.GeneratePassword(ctx)
		if err != nil {
			return "", fmt.Errorf("ошибка генерации пароля: %w", err)
		}
		return generated, nil
	case f.password != "":
		return f.password, nil
	case required:
		return types.ReadSecret("Пароль: ")
	}
	return "", nil
}

var createFields fields

var CreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Создать запись",
	Long: `Создание новой записи в хранилище.

Пароль можно передать флагом, ввести без эха или сгенерировать на сервере (--generate).
Иконка сайта загружается в фоне после создания.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := types.Ready(ctx, app); err != nil {
			return err
		}

		f := &createFields
		if f.label == "" {
			f.label = types.ReadLine("Название записи: ")
		}
		secret, err := f.secret(ctx, app, true)
		if err != nil {
			return err
		}

		p, err := app.CreatePassword(ctx, vault.PasswordRequest{
			Label:    f.label,
			Username: f.username,
			Password: secret,
			URL:      f.url,
			Notes:    f.notes,
			Folder:   f.folder,
			TagIDs:   f.tags,
			Favorite: f.favorite,
		})
		if err != nil {
			return fmt.Errorf("ошибка создания записи: %w", err)
		}

		color.Green("✅ Запись '%s' создана", p.Label)
		fmt.Printf("ID: %s\n", p.ID)
		if f.generate && !app.Preferences().SecureScreen {
			fmt.Printf("Пароль: %s\n", secret)
		}
		return nil
	},
}

func init() {
	createFields.register(CreateCmd)
}
