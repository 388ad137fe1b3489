package settings

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ncpass/cmd/client/cmd/types"
	"ncpass/internal/app/client"
)

// SettingsCmd - просмотр и изменение настроек клиента
var SettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Настройки клиента",
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Показать настройки",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}

		p := app.Preferences()
		fmt.Printf("folders:       %t\n", p.ShowFolders)
		fmt.Printf("tags:          %t\n", p.ShowTags)
		fmt.Printf("autostart:     %t\n", p.Autostart)
		fmt.Printf("secure_screen: %t\n", p.SecureScreen)
		fmt.Printf("lock_timeout:  %d\n", p.Timeout)
		return nil
	},
}

var setters = map[string]func(*client.App, bool) error{
	"folders":       (*client.App).SetShowFolders,
	"tags":          (*client.App).SetShowTags,
	"autostart":     (*client.App).SetAutostart,
	"secure_screen": (*client.App).SetSecureScreen,
}

var setCmd = &cobra.Command{
	Use:   "set <folders|tags|autostart|secure_screen> <true|false>",
	Short: "Изменить настройку",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}

		set, ok := setters[args[0]]
		if !ok {
			return fmt.Errorf("неизвестная настройка: %s", args[0])
		}
		value, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("значение должно быть true или false: %w", err)
		}

		if err := types.EnsureUnlocked(cmd.Context(), app); err != nil {
			return err
		}
		if err := set(app, value); err != nil {
			return fmt.Errorf("ошибка сохранения настройки: %w", err)
		}

		color.Green("✅ %s = %t", args[0], value)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Сбросить настройки",
	Long:  `Возвращает настройки к значениям по умолчанию и очищает кэш иконок. Сессия сохраняется.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		deferred, err := app.ResetPreferences(ctx)
		if err := types.Confirm(ctx, app, deferred, err); err != nil {
			return fmt.Errorf("ошибка сброса настроек: %w", err)
		}

		color.Green("✅ Настройки сброшены")
		return nil
	},
}

func init() {
	SettingsCmd.AddCommand(showCmd, setCmd, resetCmd)
}
