package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultEnv            = "local"
	defaultConfigDir      = ".ncpass"
	defaultDataFile       = "ncpass.db"
	defaultKeyFile        = ".seal.key"
	defaultRequestTimeout = 30
	defaultNotifyBuffer   = 16
	defaultUserAgent      = "ncpass/1.0"
)

type Config struct {
	Env                string `mapstructure:"app_env"`
	LogLevel           string `mapstructure:"log_level"`
	ConfigDir          string `mapstructure:"config_dir"`
	DataPath           string `mapstructure:"data_path"`
	KeyPath            string `mapstructure:"key_path"`
	RequestTimeout     int    `mapstructure:"request_timeout_seconds"`
	NotificationBuffer int    `mapstructure:"notification_buffer"`
	UserAgent          string `mapstructure:"user_agent"`
}

// MustLoad загружает конфигурацию клиента
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("Ошибка конфигурации: %v", err))
	}
	return cfg
}

// Load читает .env, переменные окружения и значения по умолчанию
func Load() (*Config, error) {
	// Определяем путь к .env файлу (относительно места запуска)
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = "../.env"
	}

	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Printf("Ошибка загрузки .env файла: %v\n", err)
		}
	}

	viper.AutomaticEnv()

	viper.SetDefault("APP_ENV", defaultEnv)
	viper.SetDefault("CONFIG_DIR", defaultConfigDir)
	viper.SetDefault("REQUEST_TIMEOUT_SECONDS", defaultRequestTimeout)
	viper.SetDefault("NOTIFICATION_BUFFER", defaultNotifyBuffer)
	viper.SetDefault("USER_AGENT", defaultUserAgent)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == defaultConfigDir {
		configDir = filepath.Join(homeDir, configDir)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("ошибка создания директории конфигурации: %w", err)
	}

	dataPath := viper.GetString("DATA_PATH")
	if dataPath == "" {
		dataPath = filepath.Join(configDir, defaultDataFile)
	}

	keyPath := viper.GetString("KEY_PATH")
	if keyPath == "" {
		keyPath = filepath.Join(configDir, defaultKeyFile)
	}

	config := &Config{
		Env:                viper.GetString("APP_ENV"),
		LogLevel:           viper.GetString("LOG_LEVEL"),
		ConfigDir:          configDir,
		DataPath:           dataPath,
		KeyPath:            keyPath,
		RequestTimeout:     viper.GetInt("REQUEST_TIMEOUT_SECONDS"),
		NotificationBuffer: viper.GetInt("NOTIFICATION_BUFFER"),
		UserAgent:          viper.GetString("USER_AGENT"),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("data_path не может быть пустым")
	}
	if c.KeyPath == "" {
		return fmt.Errorf("key_path не может быть пустым")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout_seconds не может быть отрицательным")
	}
	if c.NotificationBuffer < 1 {
		return fmt.Errorf("notification_buffer должен быть положительным")
	}
	return nil
}

// IsProd проверяет, prod ли окружение
func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == ""
}
