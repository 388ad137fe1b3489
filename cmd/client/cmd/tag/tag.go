package tag

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ncpass/cmd/client/cmd/types"
	"ncpass/internal/domain/vault"
)

// TagCmd - родительская команда для операций с тегами
var TagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Управление тегами",
}

var (
	tagColor string
	favorite bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Список тегов",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := types.EnsureUnlocked(ctx, app); err != nil {
			return err
		}
		if err := app.Refresh(ctx, false, true); err != nil {
			return fmt.Errorf("ошибка загрузки тегов: %w", err)
		}

		tags, err := app.Tags()
		if err != nil {
			return err
		}
		if len(tags) == 0 {
			fmt.Println("Теги не найдены")
			return nil
		}

		for _, t := range tags {
			fmt.Printf("%s %-24s %s\n", swatch(t.Color), t.Label, color.New(color.Faint).Sprint(t.ID))
		}
		return nil
	},
}

// swatch рисует цветной квадрат для цвета вида #rrggbb
func swatch(hex string) string {
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return "■"
	}
	return color.RGB(r, g, b).Sprint("■")
}

var createCmd = &cobra.Command{
	Use:   "create <label>",
	Short: "Создать тег",
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

		t, err := app.CreateTag(ctx, vault.TagRequest{Label: args[0], Color: tagColor, Favorite: favorite})
		if err != nil {
			return fmt.Errorf("ошибка создания тега: %w", err)
		}

		color.Green("✅ Тег '%s' создан", t.Label)
		fmt.Printf("ID: %s\n", t.ID)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id> <label>",
	Short: "Изменить тег",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := types.Ready(ctx, app); err != nil {
			return err
		}

		t, err := app.UpdateTag(ctx, args[0], vault.TagRequest{Label: args[1], Color: tagColor, Favorite: favorite})
		if err != nil {
			return fmt.Errorf("ошибка изменения тега: %w", err)
		}

		color.Green("✅ Тег '%s' изменен", t.Label)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Удалить тег",
	Long:  `Удаляет тег; записи остаются, но теряют этот тег.`,
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

		if err := app.DeleteTag(ctx, args[0]); err != nil {
			return fmt.Errorf("ошибка удаления тега: %w", err)
		}

		color.Green("✅ Тег удален")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{createCmd, updateCmd} {
		c.Flags().StringVarP(&tagColor, "color", "c", "#0082c9", "цвет тега (#rrggbb)")
		c.Flags().BoolVar(&favorite, "favorite", false, "добавить в избранное")
	}

	TagCmd.AddCommand(listCmd, createCmd, updateCmd, deleteCmd)
}
