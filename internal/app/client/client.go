package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slog"

	"ncpass/internal/app/client/config"
	"ncpass/internal/app/client/crypto"
	"ncpass/internal/app/client/lock"
	"ncpass/internal/domain/vault"
)

// Vault - удаленное хранилище паролей
type Vault interface {
	Login(creds vault.Credentials)
	Credentials() vault.Credentials

	StartLogin(ctx context.Context, serverURL string) (vault.LoginFlow, error)
	PollLogin(ctx context.Context, endpoint, token string) (*vault.Credentials, error)
	RevokeAppPassword(ctx context.Context) error

	ListPasswords(ctx context.Context) ([]vault.Password, error)
	ShowPassword(ctx context.Context, id string) (vault.Password, error)
	CreatePassword(ctx context.Context, req vault.PasswordRequest) (string, error)
	UpdatePassword(ctx context.Context, id string, req vault.PasswordRequest) (string, error)
	DeletePassword(ctx context.Context, id string) error

	ListFolders(ctx context.Context) ([]vault.Folder, error)
	ShowFolder(ctx context.Context, id string) (vault.Folder, error)
	CreateFolder(ctx context.Context, req vault.FolderRequest) (string, error)
	UpdateFolder(ctx context.Context, id string, req vault.FolderRequest) (string, error)
	DeleteFolder(ctx context.Context, id string) error

	ListTags(ctx context.Context) ([]vault.Tag, error)
	ShowTag(ctx context.Context, id string) (vault.Tag, error)
	CreateTag(ctx context.Context, req vault.TagRequest) (string, error)
	UpdateTag(ctx context.Context, id string, req vault.TagRequest) (string, error)
	DeleteTag(ctx context.Context, id string) error

	GeneratePassword(ctx context.Context) (string, error)
	Favicon(ctx context.Context, host string) ([]byte, error)
}

// VaultFactory создает новый, еще не авторизованный клиент хранилища
type VaultFactory func() Vault

type NotificationKind int

const (
	NotifyRequestFailed NotificationKind = iota + 1
	NotifyLoginTimeout
	NotifyValidationFailed
	NotifyWrongCredential
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyRequestFailed:
		return "request_failed"
	case NotifyLoginTimeout:
		return "login_timeout"
	case NotifyValidationFailed:
		return "validation_failed"
	case NotifyWrongCredential:
		return "wrong_credential"
	}
	return "unknown"
}

// Notification - сообщение об ошибке для пользователя
type Notification struct {
	Kind NotificationKind
	Err  error
}

// Dependencies - внешние зависимости App
type Dependencies struct {
	Storage  Storage
	Box      *crypto.SecretBox
	NewVault VaultFactory
}

// App - контекст приложения: сессия, зеркало хранилища, блокировка и навигация.
// Создается в порядке storage -> box -> lock -> vault -> mirror -> tasks,
// закрывается в обратном.
type App struct {
	config  *config.Config
	log     *slog.Logger
	storage Storage
	box     *crypto.SecretBox
	lock    *lock.Controller
	mirror  *Mirror

	newVault VaultFactory

	mu       sync.RWMutex
	vault    Vault
	favicons *taskSet
	prefs    Preferences
	loggedIn bool
	nav      []string

	entities   keyedMutex
	refreshing atomic.Int32
	notify     chan Notification
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	// Инициализируем локальное хранилище (используем SQLite)
	var storage Storage
	sqliteStorage, err := NewSQLiteStorage(cfg.DataPath)
	if err != nil {
		log.Warn("Не удалось инициализировать SQLite, используем память", "error", err)
		storage = NewMemoryStorage()
	} else {
		storage = sqliteStorage
	}

	box, err := crypto.NewSecretBox(cfg.KeyPath)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("ошибка инициализации ключа шифрования: %w", err)
	}

	return NewWithDependencies(cfg, log, Dependencies{
		Storage:  storage,
		Box:      box,
		NewVault: func() Vault { return NewHTTPClient(cfg, log) },
	})
}

func NewWithDependencies(cfg *config.Config, log *slog.Logger, deps Dependencies) (*App, error) {
	prefs, err := LoadPreferences(deps.Storage)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки настроек: %w", err)
	}

	buffer := cfg.NotificationBuffer
	if buffer < 1 {
		buffer = 1
	}

	app := &App{
		config:   cfg,
		log:      log,
		storage:  deps.Storage,
		box:      deps.Box,
		lock:     lock.New(prefs.LockSettings(), log),
		mirror:   NewMirror(),
		newVault: deps.NewVault,
		vault:    deps.NewVault(),
		favicons: newTaskSet(maxFaviconFetches),
		prefs:    prefs,
		notify:   make(chan Notification, buffer),
	}

	app.restoreSession()

	return app, nil
}

// restoreSession восстанавливает сессию из сохраненных настроек
func (a *App) restoreSession() {
	if !a.prefs.HasSession() {
		return
	}

	appPassword, err := a.box.Open(a.prefs.SealedAppPassword)
	if err != nil {
		a.log.Warn("Не удалось расшифровать пароль приложения, требуется повторный вход", "error", err)
		return
	}

	a.vault.Login(vault.Credentials{
		Server:      a.prefs.Server,
		LoginName:   a.prefs.LoginName,
		AppPassword: appPassword,
	})
	a.loggedIn = true

	a.log.Debug("Сессия восстановлена", slog.String("server", a.prefs.Server), slog.String("login", a.prefs.LoginName))
}

// Start выполняет действия после запуска: при включенном autostart обновляет хранилище
func (a *App) Start(ctx context.Context) error {
	prefs := a.Preferences()
	if !prefs.Autostart || !a.LoggedIn() || !a.lock.IsUnlocked() {
		return nil
	}
	return a.Refresh(ctx, prefs.ShowFolders, prefs.ShowTags)
}

// Shutdown останавливает фоновые задачи и закрывает хранилище
func (a *App) Shutdown() {
	a.log.Debug("Завершение работы клиента...")

	a.tasks().Close()

	if err := a.storage.Close(); err != nil {
		a.log.Warn("Ошибка закрытия хранилища", "error", err)
	}

	a.log.Debug("Клиент завершил работу")
}

func (a *App) currentVault() Vault {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.vault
}

func (a *App) tasks() *taskSet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.favicons
}

// WaitBackground дожидается фоновых загрузок иконок
func (a *App) WaitBackground() {
	a.tasks().Wait()
}

// ==================== Signals ====================

// Notifications возвращает канал сообщений об ошибках
func (a *App) Notifications() <-chan Notification {
	return a.notify
}

// Refreshing сообщает, выполняется ли сейчас запрос к хранилищу
func (a *App) Refreshing() bool {
	return a.refreshing.Load() > 0
}

func (a *App) begin() func() {
	a.refreshing.Add(1)
	return func() { a.refreshing.Add(-1) }
}

// report отправляет уведомление, не блокируясь при переполненном канале
func (a *App) report(err error) {
	var kind NotificationKind
	switch {
	case errors.Is(err, vault.ErrValidation):
		kind = NotifyValidationFailed
	case errors.Is(err, vault.ErrLoginTimeout):
		kind = NotifyLoginTimeout
	case errors.Is(err, vault.ErrWrongCredential):
		kind = NotifyWrongCredential
	case errors.Is(err, vault.ErrRequestFailed):
		kind = NotifyRequestFailed
	default:
		return
	}

	a.log.Warn("Ошибка операции", slog.String("kind", kind.String()), slog.String("error", err.Error()))

	select {
	case a.notify <- Notification{Kind: kind, Err: err}:
	default:
		a.log.Debug("Очередь уведомлений переполнена", slog.String("kind", kind.String()))
	}
}

// ==================== Session ====================

func (a *App) LoggedIn() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loggedIn
}

// Session возвращает сервер и имя пользователя текущей сессии (без пароля приложения)
func (a *App) Session() (server, loginName string, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.loggedIn {
		return "", "", false
	}
	creds := a.vault.Credentials()
	return creds.Server, creds.LoginName, true
}

// AttemptLogin начинает вход и возвращает URL для подтверждения в браузере
func (a *App) AttemptLogin(ctx context.Context, serverURL string) (vault.LoginFlow, error) {
	if err := vault.ValidateServerURL(serverURL); err != nil {
		a.report(err)
		return vault.LoginFlow{}, err
	}

	done := a.begin()
	defer done()

	flow, err := a.currentVault().StartLogin(ctx, serverURL)
	if err != nil {
		a.report(err)
		return vault.LoginFlow{}, err
	}

	a.log.Info("Ожидание подтверждения входа", slog.String("server", serverURL))
	return flow, nil
}

// CompleteLogin дожидается подтверждения и активирует сессию.
// Зеркало остается пустым до явного Refresh.
func (a *App) CompleteLogin(ctx context.Context, flow vault.LoginFlow) error {
	done := a.begin()
	defer done()

	creds, err := a.currentVault().PollLogin(ctx, flow.PollEndpoint, flow.PollToken)
	if err != nil {
		return err
	}
	if creds == nil {
		a.report(vault.ErrLoginTimeout)
		return vault.ErrLoginTimeout
	}

	return a.activateSession(*creds)
}

// LoginWithAppPassword входит с уже выданным паролем приложения и проверяет его запросом
func (a *App) LoginWithAppPassword(ctx context.Context, creds vault.Credentials) error {
	if err := vault.ValidateServerURL(creds.Server); err != nil {
		a.report(err)
		return err
	}
	if creds.Empty() {
		err := fmt.Errorf("%w: login name and app password are required", vault.ErrValidation)
		a.report(err)
		return err
	}

	done := a.begin()
	defer done()

	probe := a.newVault()
	probe.Login(creds)
	if _, err := probe.ListTags(ctx); err != nil {
		a.report(err)
		return err
	}

	return a.activateSession(creds)
}

func (a *App) activateSession(creds vault.Credentials) error {
	sealed, err := a.box.Seal(creds.AppPassword)
	if err != nil {
		return fmt.Errorf("ошибка шифрования пароля приложения: %w", err)
	}

	a.mu.Lock()
	a.vault.Login(creds)
	active := a.vault.Credentials()
	a.loggedIn = true
	a.nav = nil
	a.prefs.Server = active.Server
	a.prefs.LoginName = active.LoginName
	a.prefs.SealedAppPassword = sealed
	a.mu.Unlock()

	a.mirror.Clear()

	if err := saveSession(a.storage, active, sealed); err != nil {
		a.log.Warn("Не удалось сохранить сессию", "error", err)
	}

	a.log.Info("Вход выполнен успешно", slog.String("login", creds.LoginName))
	return nil
}

// AttemptLogout выходит из аккаунта. При включенном PIN-коде выход откладывается
// до разблокировки; deferred=true означает, что действие поставлено в очередь.
// force завершает сессию локально, даже если сервер не отозвал пароль приложения.
func (a *App) AttemptLogout(ctx context.Context, force bool) (deferred bool, err error) {
	if !a.LoggedIn() {
		return false, vault.ErrNotLoggedIn
	}
	return a.RequestSensitive(ctx, lock.Logout(force))
}

func (a *App) logout(ctx context.Context, force bool) error {
	if !a.LoggedIn() {
		return vault.ErrNotLoggedIn
	}

	done := a.begin()
	defer done()

	if err := a.currentVault().RevokeAppPassword(ctx); err != nil {
		if !force {
			a.report(err)
			return err
		}
		a.log.Warn("Не удалось отозвать пароль приложения, выход только локально", "error", err)
	}

	a.mu.Lock()
	tasks := a.favicons
	a.favicons = newTaskSet(maxFaviconFetches)
	a.mu.Unlock()

	tasks.Close()

	a.mu.Lock()
	a.vault = a.newVault()
	a.loggedIn = false
	a.nav = nil
	a.prefs.Server = ""
	a.prefs.LoginName = ""
	a.prefs.SealedAppPassword = ""
	a.mu.Unlock()

	a.mirror.Clear()

	if err := a.storage.DeletePreferences(sessionKeys...); err != nil {
		a.log.Warn("Не удалось удалить сохраненную сессию", "error", err)
	}
	if err := a.storage.ClearFavicons(); err != nil {
		a.log.Warn("Не удалось очистить кэш иконок", "error", err)
	}

	a.log.Info("Выход выполнен")
	return nil
}

// ==================== Lock ====================

func (a *App) LockState() lock.State {
	return a.lock.State()
}

// Lock блокирует приложение, если включен PIN-код
func (a *App) Lock() {
	a.lock.Lock()
}

func (a *App) Background(now time.Time) {
	a.lock.Background(now)
}

func (a *App) Foreground(now time.Time) {
	a.lock.Foreground(now)
}

// PendingIntent возвращает действие, ожидающее разблокировки
func (a *App) PendingIntent() (lock.Intent, bool) {
	return a.lock.Pending()
}

func (a *App) requireUnlocked() error {
	if !a.lock.IsUnlocked() {
		return vault.ErrLocked
	}
	return nil
}

// ready проверяет, что хранилище доступно для чтения и изменений
func (a *App) ready() error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}
	if !a.LoggedIn() {
		return vault.ErrNotLoggedIn
	}
	return nil
}

// RequestSensitive выполняет действие, требующее подтверждения личности.
// При включенном PIN-коде приложение блокируется, а действие откладывается
// до Unlock или CompleteBiometric.
func (a *App) RequestSensitive(ctx context.Context, intent lock.Intent) (deferred bool, err error) {
	if err := intent.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", vault.ErrValidation, err)
	}
	if intent.Kind == lock.IntentChangePIN {
		if err := vault.ValidatePIN(intent.NewPIN); err != nil {
			a.report(err)
			return false, err
		}
	}

	if !a.lock.Settings().PINProtected() {
		if intent.Kind == lock.IntentDisablePIN || intent.Kind == lock.IntentChangePIN {
			return false, lock.ErrNoPIN
		}
		return false, a.runIntent(ctx, intent)
	}

	if err := a.lock.Defer(intent); err != nil {
		return false, err
	}
	a.lock.Lock()
	return true, nil
}

// Unlock проверяет PIN-код и выполняет отложенное действие
func (a *App) Unlock(ctx context.Context, pin string) error {
	intent, err := a.lock.CheckPin(pin)
	if err != nil {
		a.report(err)
		return err
	}
	return a.afterUnlock(ctx, intent)
}

func (a *App) BeginBiometric() error {
	return a.lock.BeginBiometric()
}

// CompleteBiometric принимает результат биометрической проверки
func (a *App) CompleteBiometric(ctx context.Context, ok bool) error {
	intent, err := a.lock.CompleteBiometric(ok)
	if err != nil {
		a.report(err)
		return err
	}
	return a.afterUnlock(ctx, intent)
}

func (a *App) CancelBiometric() {
	a.lock.CancelBiometric()
}

// afterUnlock выполняет отложенное действие. Если оно не удалось, действие
// возвращается в очередь и приложение снова блокируется: следующая
// разблокировка повторит попытку.
func (a *App) afterUnlock(ctx context.Context, intent *lock.Intent) error {
	a.log.Debug("Приложение разблокировано")
	if intent == nil {
		return nil
	}

	err := a.runIntent(ctx, *intent)
	if err == nil {
		return nil
	}
	if derr := a.lock.Defer(*intent); derr != nil {
		a.log.Error("Не удалось вернуть действие в очередь",
			slog.String("intent", intent.Kind.String()), slog.String("error", derr.Error()))
		return err
	}
	a.lock.Lock()
	a.log.Warn("Действие не выполнено, ожидает повторной разблокировки",
		slog.String("intent", intent.Kind.String()), slog.String("error", err.Error()))
	return err
}

func (a *App) runIntent(ctx context.Context, intent lock.Intent) error {
	a.log.Info("Выполнение действия", slog.String("intent", intent.Kind.String()))

	switch intent.Kind {
	case lock.IntentDisablePIN:
		return a.updateLockSettings(func(s *lock.Settings) { s.PINHash = ""; s.Biometric = false })
	case lock.IntentChangePIN:
		hash, err := crypto.HashPIN(intent.NewPIN)
		if err != nil {
			return fmt.Errorf("ошибка хэширования PIN-кода: %w", err)
		}
		return a.updateLockSettings(func(s *lock.Settings) { s.PINHash = hash })
	case lock.IntentResetPreferences:
		return a.resetPreferences()
	case lock.IntentLogout:
		return a.logout(ctx, intent.Force)
	}
	return fmt.Errorf("unknown intent kind %d", intent.Kind)
}
