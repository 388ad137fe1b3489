package client

import (
	"fmt"
	"strconv"

	"ncpass/internal/app/client/lock"
	"ncpass/internal/domain/vault"
)

const (
	prefServer      = "server"
	prefLoginName   = "loginName"
	prefAppPassword = "appPassword"
	prefPIN         = "PIN"
	prefTimeout     = "timeout"
	prefBiometric   = "biometric"
	prefFolders     = "folders"
	prefTags        = "tags"
	prefAutostart   = "autostart"
	prefScreen      = "screen"
)

var sessionKeys = []string{prefServer, prefLoginName, prefAppPassword}

// Preferences - типизированное представление сохраненных настроек.
// AppPassword хранится только в зашифрованном виде.
type Preferences struct {
	Server            string
	LoginName         string
	SealedAppPassword string

	PINHash   string
	Timeout   int
	Biometric bool

	// ShowFolders и ShowTags включают загрузку папок и тегов при обновлении
	ShowFolders bool
	ShowTags    bool
	// Autostart - обновлять хранилище сразу после запуска
	Autostart bool
	// SecureScreen - скрывать секреты при выводе
	SecureScreen bool
}

func DefaultPreferences() Preferences {
	return Preferences{
		Timeout:      lock.TimeoutImmediate,
		ShowFolders:  true,
		ShowTags:     true,
		SecureScreen: true,
	}
}

func (p Preferences) HasSession() bool {
	return p.Server != "" && p.LoginName != "" && p.SealedAppPassword != ""
}

func (p Preferences) LockSettings() lock.Settings {
	return lock.Settings{PINHash: p.PINHash, Biometric: p.Biometric, Timeout: p.Timeout}
}

// LoadPreferences читает настройки; отсутствующие ключи получают значения по умолчанию
func LoadPreferences(s Storage) (Preferences, error) {
	prefs := DefaultPreferences()

	strs := map[string]*string{
		prefServer:      &prefs.Server,
		prefLoginName:   &prefs.LoginName,
		prefAppPassword: &prefs.SealedAppPassword,
		prefPIN:         &prefs.PINHash,
	}
	for key, dst := range strs {
		value, ok, err := s.GetPreference(key)
		if err != nil {
			return prefs, err
		}
		if ok {
			*dst = value
		}
	}

	bools := map[string]*bool{
		prefBiometric: &prefs.Biometric,
		prefFolders:   &prefs.ShowFolders,
		prefTags:      &prefs.ShowTags,
		prefAutostart: &prefs.Autostart,
		prefScreen:    &prefs.SecureScreen,
	}
	for key, dst := range bools {
		value, ok, err := s.GetPreference(key)
		if err != nil {
			return prefs, err
		}
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return prefs, fmt.Errorf("некорректное значение настройки %s: %w", key, err)
		}
		*dst = parsed
	}

	if value, ok, err := s.GetPreference(prefTimeout); err != nil {
		return prefs, err
	} else if ok {
		timeout, err := strconv.Atoi(value)
		if err != nil || timeout < lock.TimeoutNever {
			return prefs, fmt.Errorf("некорректное значение настройки %s: %q", prefTimeout, value)
		}
		prefs.Timeout = timeout
	}

	return prefs, nil
}

func saveSession(s Storage, creds vault.Credentials, sealed string) error {
	if err := s.SetPreference(prefServer, creds.Server); err != nil {
		return err
	}
	if err := s.SetPreference(prefLoginName, creds.LoginName); err != nil {
		return err
	}
	return s.SetPreference(prefAppPassword, sealed)
}

func setBoolPreference(s Storage, key string, value bool) error {
	return s.SetPreference(key, strconv.FormatBool(value))
}

// ValidateTimeout проверяет таймаут блокировки: -1, 0 или положительное число секунд
func ValidateTimeout(timeout int) error {
	if timeout < lock.TimeoutNever {
		return fmt.Errorf("%w: timeout must be -1, 0 or a positive number of seconds", vault.ErrValidation)
	}
	return nil
}
