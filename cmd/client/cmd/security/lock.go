package security

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ncpass/cmd/client/cmd/types"
	"ncpass/internal/app/client/lock"
)

// LockCmd - родительская команда для настроек блокировки
var LockCmd = &cobra.Command{
	Use:   "lock",
	Short: "PIN-код, биометрия и таймаут блокировки",
}

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Управление PIN-кодом",
}

var pinSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Включить защиту PIN-кодом",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}

		pin, err := readNewPIN()
		if err != nil {
			return err
		}
		if err := app.EnablePIN(pin); err != nil {
			return fmt.Errorf("ошибка установки PIN-кода: %w", err)
		}

		color.Green("✅ PIN-код установлен")
		return nil
	},
}

var pinChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Сменить PIN-код",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		pin, err := readNewPIN()
		if err != nil {
			return err
		}

		deferred, err := app.RequestSensitive(ctx, lock.ChangePIN(pin))
		if err := types.Confirm(ctx, app, deferred, err); err != nil {
			return fmt.Errorf("ошибка смены PIN-кода: %w", err)
		}

		color.Green("✅ PIN-код изменен")
		return nil
	},
}

var pinDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Отключить PIN-код",
	Long:  `Отключает защиту PIN-кодом. Биометрическая разблокировка отключается вместе с ним.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		deferred, err := app.RequestSensitive(ctx, lock.DisablePIN())
		if err := types.Confirm(ctx, app, deferred, err); err != nil {
			return fmt.Errorf("ошибка отключения PIN-кода: %w", err)
		}

		color.Green("✅ PIN-код отключен")
		return nil
	},
}

var biometricCmd = &cobra.Command{
	Use:       "biometric <on|off>",
	Short:     "Разрешить разблокировку биометрией",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		if err := types.EnsureUnlocked(cmd.Context(), app); err != nil {
			return err
		}

		enabled, err := onOff(args[0])
		if err != nil {
			return err
		}
		if err := app.SetBiometric(enabled); err != nil {
			if errors.Is(err, lock.ErrNoPIN) {
				return fmt.Errorf("сначала установите PIN-код: ncpass lock pin set")
			}
			return err
		}

		color.Green("✅ Биометрия: %s", args[0])
		return nil
	},
}

var timeoutCmd = &cobra.Command{
	Use:   "timeout <seconds>",
	Short: "Задать таймаут блокировки",
	Long: `Таймаут блокировки в секундах.

 -1  не блокировать до завершения процесса
  0  блокировать сразу при уходе в фон
 >0  блокировать, если приложение провело в фоне не меньше указанного времени`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}
		if err := types.EnsureUnlocked(cmd.Context(), app); err != nil {
			return err
		}

		timeout, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("таймаут должен быть целым числом: %w", err)
		}
		if err := app.SetLockTimeout(timeout); err != nil {
			return fmt.Errorf("ошибка установки таймаута: %w", err)
		}

		color.Green("✅ Таймаут блокировки: %d", timeout)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Показать настройки блокировки",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.AppFrom(cmd)
		if err != nil {
			return err
		}

		prefs := app.Preferences()
		fmt.Printf("Состояние:  %s\n", app.LockState())
		fmt.Printf("PIN-код:    %t\n", prefs.PINHash != "")
		fmt.Printf("Биометрия:  %t\n", prefs.Biometric)
		fmt.Printf("Таймаут:    %d\n", prefs.Timeout)
		if intent, ok := app.PendingIntent(); ok {
			fmt.Printf("Ожидает:    %s\n", intent.Kind)
		}
		return nil
	},
}

func readNewPIN() (string, error) {
	pin, err := types.ReadSecret("Новый PIN-код: ")
	if err != nil {
		return "", err
	}
	confirm, err := types.ReadSecret("Повторите PIN-код: ")
	if err != nil {
		return "", err
	}
	if pin != confirm {
		return "", fmt.Errorf("PIN-коды не совпадают")
	}
	return pin, nil
}

func onOff(arg string) (bool, error) {
	switch arg {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("ожидается on или off, получено %q", arg)
}

func init() {
	pinCmd.AddCommand(pinSetCmd, pinChangeCmd, pinDisableCmd)
	LockCmd.AddCommand(pinCmd, biometricCmd, timeoutCmd, statusCmd)
}
