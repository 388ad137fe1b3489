package sync

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ncpass/cmd/client/cmd/types"
)

var (
	withFolders bool
	withTags    bool
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Загрузить хранилище с сервера",
	Long: `Загружает записи с сервера и показывает сводку.

Папки и теги загружаются, если они включены в настройках или переданы флагами.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := types.EnsureUnlocked(ctx, app); err != nil {
			return err
		}

		prefs := app.Preferences()
		folders := withFolders || prefs.ShowFolders
		tags := withTags || prefs.ShowTags

		start := time.Now()
		if err := app.Refresh(ctx, folders, tags); err != nil {
			return fmt.Errorf("ошибка синхронизации: %w", err)
		}

		passwords, err := app.Passwords()
		if err != nil {
			return err
		}
		color.Green("✓ Хранилище загружено за %s", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Записей: %d\n", len(passwords))

		if folders {
			list, err := app.Folders()
			if err != nil {
				return err
			}
			// Базовая папка не считается
			fmt.Printf("  Папок:   %d\n", len(list)-1)
		}
		if tags {
			list, err := app.Tags()
			if err != nil {
				return err
			}
			fmt.Printf("  Тегов:   %d\n", len(list))
		}
		return nil
	},
}

func init() {
	SyncCmd.Flags().BoolVar(&withFolders, "folders", false, "загрузить папки")
	SyncCmd.Flags().BoolVar(&withTags, "tags", false, "загрузить теги")
}
