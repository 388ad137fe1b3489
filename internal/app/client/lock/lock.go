package lock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"ncpass/internal/app/client/crypto"
	"ncpass/internal/domain/vault"
)

type State int

const (
	Unlocked State = iota
	Locked
	AwaitingBiometric
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	case AwaitingBiometric:
		return "awaiting_biometric"
	}
	return "unknown"
}

const (
	// TimeoutNever - не блокировать до завершения процесса
	TimeoutNever = -1
	// TimeoutImmediate - блокировать при каждом уходе в фон
	TimeoutImmediate = 0
)

var (
	ErrBiometricDisabled = errors.New("biometric unlock is disabled")
	ErrNoPIN             = errors.New("pin protection is not enabled")
	ErrInvalidTransition = errors.New("invalid lock state transition")
)

// Settings - сохраненные настройки блокировки
type Settings struct {
	PINHash   string
	Biometric bool
	Timeout   int
}

func (s Settings) PINProtected() bool {
	return s.PINHash != ""
}

// Controller - конечный автомат блокировки приложения.
// Все методы безопасны для конкурентного вызова.
type Controller struct {
	mu           sync.Mutex
	log          *slog.Logger
	settings     Settings
	state        State
	pending      slot
	backgrounded bool
	backgroundAt time.Time
}

// New создает контроллер; при включенном PIN-коде приложение стартует заблокированным
func New(settings Settings, log *slog.Logger) *Controller {
	c := &Controller{
		log:      log.With(slog.String("component", "lock")),
		settings: settings,
		state:    Unlocked,
	}
	if settings.PINProtected() {
		c.state = Locked
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// IsUnlocked проверяет, доступны ли данные хранилища
func (c *Controller) IsUnlocked() bool {
	return c.State() == Unlocked
}

// Configure применяет новые настройки. Снятие PIN-кода разблокирует приложение.
func (c *Controller) Configure(settings Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings = settings
	if !settings.PINProtected() {
		c.state = Unlocked
		c.pending.take()
	}
	if !settings.Biometric && c.state == AwaitingBiometric {
		c.state = Locked
	}
}

// Lock блокирует приложение (например, перед изменением чувствительных настроек)
func (c *Controller) Lock() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.settings.PINProtected() {
		return
	}
	c.state = Locked
	c.log.Debug("Приложение заблокировано")
}

// Background фиксирует уход приложения в фон
func (c *Controller) Background(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.backgrounded = true
	c.backgroundAt = now

	if c.settings.PINProtected() && c.settings.Timeout == TimeoutImmediate {
		c.state = Locked
		c.log.Debug("Блокировка при уходе в фон")
	}
}

// Foreground фиксирует возврат приложения; положительный таймаут блокирует
// приложение, если в фоне оно провело не меньше Timeout секунд
func (c *Controller) Foreground(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.backgrounded {
		return
	}
	c.backgrounded = false

	if !c.settings.PINProtected() || c.settings.Timeout <= 0 {
		return
	}

	grace := time.Duration(c.settings.Timeout) * time.Second
	if now.Sub(c.backgroundAt) >= grace {
		c.state = Locked
		c.log.Debug("Истек таймаут блокировки", slog.Duration("grace", grace))
	}
}

// CheckPin проверяет PIN-код. При успехе приложение разблокируется и
// возвращается отложенное действие (если было). При ошибке состояние не меняется.
func (c *Controller) CheckPin(candidate string) (*Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.settings.PINProtected() {
		return nil, ErrNoPIN
	}

	ok, err := crypto.VerifyPIN(candidate, c.settings.PINHash)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки PIN-кода: %w", err)
	}
	if !ok {
		if c.state == AwaitingBiometric {
			c.state = Locked
		}
		return nil, vault.ErrWrongCredential
	}

	c.state = Unlocked
	return c.pending.take(), nil
}

// BeginBiometric переводит автомат в ожидание биометрии
func (c *Controller) BeginBiometric() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.settings.Biometric {
		return ErrBiometricDisabled
	}
	if c.state != Locked {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, AwaitingBiometric)
	}
	c.state = AwaitingBiometric
	return nil
}

// CompleteBiometric завершает биометрическую проверку
func (c *Controller) CompleteBiometric(ok bool) (*Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != AwaitingBiometric {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, Unlocked)
	}
	if !ok {
		c.state = Locked
		return nil, vault.ErrWrongCredential
	}

	c.state = Unlocked
	return c.pending.take(), nil
}

// CancelBiometric закрывает биометрический запрос без результата
func (c *Controller) CancelBiometric() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == AwaitingBiometric {
		c.state = Locked
	}
}

// Defer ставит действие в очередь до следующей успешной разблокировки.
// Вторая постановка при непустой очереди отклоняется.
func (c *Controller) Defer(i Intent) error {
	if err := i.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pending.put(i); err != nil {
		return err
	}
	c.log.Debug("Действие отложено до разблокировки", slog.String("intent", i.Kind.String()))
	return nil
}

// Pending возвращает отложенное действие, не извлекая его
func (c *Controller) Pending() (Intent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.peek()
}

// DropPending отменяет отложенное действие
func (c *Controller) DropPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.take()
}
