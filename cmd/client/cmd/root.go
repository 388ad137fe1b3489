// cmd/client/cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slog"

	"ncpass/cmd/client/cmd/auth"
	"ncpass/cmd/client/cmd/folder"
	"ncpass/cmd/client/cmd/password"
	"ncpass/cmd/client/cmd/security"
	"ncpass/cmd/client/cmd/settings"
	"ncpass/cmd/client/cmd/sync"
	"ncpass/cmd/client/cmd/tag"
	"ncpass/cmd/client/cmd/types"
	"ncpass/internal/app/client"
	"ncpass/internal/app/client/config"
	"ncpass/internal/utils/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *slog.Logger
	app     *client.App
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "ncpass",
	Short: "ncpass - клиент для хранилища паролей Nextcloud Passwords",
	Long: `ncpass работает с хранилищем паролей на сервере Nextcloud.

Вход выполняется через браузер (Login Flow v2) или с готовым паролем приложения.
Локальная копия хранилища живет только в памяти процесса; на диске хранятся
настройки, зашифрованный пароль приложения и кэш иконок.`,
	PersistentPreRunE: setupApp,
	PersistentPostRun: teardownApp,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = loadConfig()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	env, level := cfg.Env, cfg.LogLevel
	if debug {
		env, level = logger.EnvDev, "debug"
	}
	log, err = logger.NewWithLevel(env, level)
	if err != nil {
		return fmt.Errorf("ошибка настройки логгера: %w", err)
	}

	app, err = client.New(cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	if err := app.Start(cmd.Context()); err != nil {
		log.Warn("Автообновление не выполнено", "error", err)
	}

	cmd.SetContext(context.WithValue(cmd.Context(), types.ClientAppKey, app))
	return nil
}

func teardownApp(_ *cobra.Command, _ []string) {
	if app != nil {
		app.WaitBackground()
		app.Shutdown()
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		viper.AddConfigPath(filepath.Join(home, ".ncpass"))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Конфиг не найден, используем значения по умолчанию
	}

	return config.Load()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "включить отладочный режим")

	rootCmd.AddCommand(auth.AuthCmd)
	auth.AuthCmd.AddCommand(auth.LoginCmd)
	auth.AuthCmd.AddCommand(auth.LogoutCmd)
	auth.AuthCmd.AddCommand(auth.StatusCmd)

	rootCmd.AddCommand(password.PasswordCmd)
	rootCmd.AddCommand(folder.FolderCmd)
	rootCmd.AddCommand(tag.TagCmd)
	rootCmd.AddCommand(security.LockCmd)
	rootCmd.AddCommand(settings.SettingsCmd)
	rootCmd.AddCommand(sync.SyncCmd)
}
