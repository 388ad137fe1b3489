package folder

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ncpass/cmd/client/cmd/types"
	"ncpass/internal/domain/vault"
)

// FolderCmd - родительская команда для операций с папками
var FolderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Управление папками",
}

var (
	parentID string
	favorite bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Список папок",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := types.EnsureUnlocked(ctx, app); err != nil {
			return err
		}
		if err := app.Refresh(ctx, true, false); err != nil {
			return fmt.Errorf("ошибка загрузки папок: %w", err)
		}

		folders, err := app.Folders()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Название\tРодитель\tID\t\n")
		for _, f := range folders {
			label := f.Label
			if f.IsBase() {
				label = color.New(color.Bold).Sprint(label)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", label, f.Parent, f.ID)
		}
		return w.Flush()
	},
}

var createCmd = &cobra.Command{
	Use:   "create <label>",
	Short: "Создать папку",
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

		f, err := app.CreateFolder(ctx, vault.FolderRequest{Label: args[0], Parent: parentID, Favorite: favorite})
		if err != nil {
			return fmt.Errorf("ошибка создания папки: %w", err)
		}

		color.Green("✅ Папка '%s' создана", f.Label)
		fmt.Printf("ID: %s\n", f.ID)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id> <label>",
	Short: "Переименовать или переместить папку",
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

		f, err := app.UpdateFolder(ctx, args[0], vault.FolderRequest{Label: args[1], Parent: parentID, Favorite: favorite})
		if err != nil {
			return fmt.Errorf("ошибка изменения папки: %w", err)
		}

		color.Green("✅ Папка '%s' изменена", f.Label)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Удалить папку",
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

		if err := app.DeleteFolder(ctx, args[0]); err != nil {
			return fmt.Errorf("ошибка удаления папки: %w", err)
		}

		color.Green("✅ Папка удалена")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{createCmd, updateCmd} {
		c.Flags().StringVar(&parentID, "parent", vault.BaseFolderID, "id родительской папки")
		c.Flags().BoolVar(&favorite, "favorite", false, "добавить в избранное")
	}

	FolderCmd.AddCommand(listCmd, createCmd, updateCmd, deleteCmd)
}
