package client

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/exp/slog"

	"ncpass/internal/app/client/crypto"
	"ncpass/internal/app/client/lock"
	"ncpass/internal/domain/vault"
)

// Preferences возвращает копию текущих настроек
func (a *App) Preferences() Preferences {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.prefs
}

// EnablePIN включает защиту PIN-кодом. Смена уже установленного PIN-кода
// выполняется через RequestSensitive(lock.ChangePIN(...)).
func (a *App) EnablePIN(pin string) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}
	if a.lock.Settings().PINProtected() {
		return fmt.Errorf("PIN-код уже установлен")
	}
	if err := vault.ValidatePIN(pin); err != nil {
		a.report(err)
		return err
	}

	hash, err := crypto.HashPIN(pin)
	if err != nil {
		return fmt.Errorf("ошибка хэширования PIN-кода: %w", err)
	}
	return a.updateLockSettings(func(s *lock.Settings) { s.PINHash = hash })
}

// SetBiometric включает разблокировку биометрией; требует установленного PIN-кода
func (a *App) SetBiometric(enabled bool) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}
	if enabled && !a.lock.Settings().PINProtected() {
		return lock.ErrNoPIN
	}
	return a.updateLockSettings(func(s *lock.Settings) { s.Biometric = enabled })
}

// SetLockTimeout задает таймаут блокировки в секундах (-1 - никогда, 0 - сразу)
func (a *App) SetLockTimeout(timeout int) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}
	if err := ValidateTimeout(timeout); err != nil {
		a.report(err)
		return err
	}
	return a.updateLockSettings(func(s *lock.Settings) { s.Timeout = timeout })
}

func (a *App) SetShowFolders(enabled bool) error {
	return a.setFlag(prefFolders, enabled, func(p *Preferences) { p.ShowFolders = enabled })
}

func (a *App) SetShowTags(enabled bool) error {
	return a.setFlag(prefTags, enabled, func(p *Preferences) { p.ShowTags = enabled })
}

func (a *App) SetAutostart(enabled bool) error {
	return a.setFlag(prefAutostart, enabled, func(p *Preferences) { p.Autostart = enabled })
}

func (a *App) SetSecureScreen(enabled bool) error {
	return a.setFlag(prefScreen, enabled, func(p *Preferences) { p.SecureScreen = enabled })
}

// ResetPreferences сбрасывает все настройки; при включенном PIN-коде откладывается до разблокировки
func (a *App) ResetPreferences(ctx context.Context) (deferred bool, err error) {
	return a.RequestSensitive(ctx, lock.ResetPreferences())
}

func (a *App) setFlag(key string, value bool, apply func(*Preferences)) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}
	if err := setBoolPreference(a.storage, key, value); err != nil {
		return fmt.Errorf("ошибка сохранения настройки: %w", err)
	}

	a.mu.Lock()
	apply(&a.prefs)
	a.mu.Unlock()
	return nil
}

// updateLockSettings сохраняет настройки блокировки и применяет их к контроллеру
func (a *App) updateLockSettings(change func(*lock.Settings)) error {
	settings := a.lock.Settings()
	change(&settings)

	if err := a.persistLockSettings(settings); err != nil {
		return err
	}

	a.mu.Lock()
	a.prefs.PINHash = settings.PINHash
	a.prefs.Biometric = settings.Biometric
	a.prefs.Timeout = settings.Timeout
	a.mu.Unlock()

	a.lock.Configure(settings)
	a.log.Info("Настройки блокировки изменены",
		slog.Bool("pin", settings.PINProtected()),
		slog.Bool("biometric", settings.Biometric),
		slog.Int("timeout", settings.Timeout),
	)
	return nil
}

func (a *App) persistLockSettings(s lock.Settings) error {
	if s.PINProtected() {
		if err := a.storage.SetPreference(prefPIN, s.PINHash); err != nil {
			return fmt.Errorf("ошибка сохранения PIN-кода: %w", err)
		}
	} else if err := a.storage.DeletePreferences(prefPIN); err != nil {
		return fmt.Errorf("ошибка удаления PIN-кода: %w", err)
	}

	if err := setBoolPreference(a.storage, prefBiometric, s.Biometric); err != nil {
		return fmt.Errorf("ошибка сохранения настройки: %w", err)
	}
	if err := a.storage.SetPreference(prefTimeout, strconv.Itoa(s.Timeout)); err != nil {
		return fmt.Errorf("ошибка сохранения настройки: %w", err)
	}
	return nil
}

// resetPreferences возвращает настройки к значениям по умолчанию, сессия сохраняется
func (a *App) resetPreferences() error {
	a.mu.RLock()
	current := a.prefs
	a.mu.RUnlock()

	if err := a.storage.ClearPreferences(); err != nil {
		return fmt.Errorf("ошибка сброса настроек: %w", err)
	}

	prefs := DefaultPreferences()
	if current.HasSession() {
		prefs.Server = current.Server
		prefs.LoginName = current.LoginName
		prefs.SealedAppPassword = current.SealedAppPassword

		creds := vault.Credentials{Server: current.Server, LoginName: current.LoginName}
		if err := saveSession(a.storage, creds, current.SealedAppPassword); err != nil {
			return fmt.Errorf("ошибка сохранения сессии: %w", err)
		}
	}

	if err := a.storage.ClearFavicons(); err != nil {
		a.log.Warn("Не удалось очистить кэш иконок", "error", err)
	}

	a.mu.Lock()
	a.prefs = prefs
	a.mu.Unlock()

	a.lock.Configure(prefs.LockSettings())
	a.log.Info("Настройки сброшены")
	return nil
}
