package client

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncpass/internal/app/client/crypto"
	"ncpass/internal/app/client/lock"
	"ncpass/internal/app/client/vaulttest"
	"ncpass/internal/domain/vault"
	"ncpass/internal/utils/logger"
)

func testBox(t *testing.T) *crypto.SecretBox {
	t.Helper()
	box, err := crypto.NewSecretBoxWithKey(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return box
}

func newTestApp(t *testing.T, storage Storage) *App {
	t.Helper()

	cfg := testConfig(t)
	app, err := NewWithDependencies(cfg, logger.Discard(), Dependencies{
		Storage: storage,
		Box:     testBox(t),
		NewVault: func() Vault {
			h := NewHTTPClient(cfg, logger.Discard())
			h.pollInterval = time.Millisecond
			return h
		},
	})
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)
	return app
}

func loggedInApp(t *testing.T, srv *vaulttest.Server) *App {
	t.Helper()
	app := newTestApp(t, NewMemoryStorage())
	require.NoError(t, app.LoginWithAppPassword(context.Background(), srv.Credentials()))
	return app
}

func drain(app *App) []Notification {
	var result []Notification
	for {
		select {
		case n := <-app.Notifications():
			result = append(result, n)
		default:
			return result
		}
	}
}

func TestApp_LoginApprovedOnThirdPoll(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	srv.ApproveOnPoll = 3
	srv.SeedPassword(vault.Password{Label: "Bank", Password: "secret-secret"})

	storage := NewMemoryStorage()
	app := newTestApp(t, storage)
	ctx := context.Background()

	flow, err := app.AttemptLogin(ctx, srv.URL)
	require.NoError(t, err)
	assert.NotEmpty(t, flow.LoginURL)

	require.NoError(t, app.CompleteLogin(ctx, flow))
	assert.Equal(t, 3, srv.PollCount())
	assert.False(t, app.Refreshing())

	server, login, ok := app.Session()
	require.True(t, ok)
	assert.Equal(t, srv.URL, server)
	assert.Equal(t, vaulttest.LoginName, login)

	// До явного обновления зеркало пустое
	passwords, err := app.Passwords()
	require.NoError(t, err)
	assert.Empty(t, passwords)

	require.NoError(t, app.Refresh(ctx, true, true))
	passwords, err = app.Passwords()
	require.NoError(t, err)
	assert.Len(t, passwords, 1)

	sealed, ok, err := storage.GetPreference(prefAppPassword)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, vaulttest.AppPassword, sealed)
}

func TestApp_LoginTimeout(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()

	app := newTestApp(t, NewMemoryStorage())
	ctx := context.Background()

	flow, err := app.AttemptLogin(ctx, srv.URL)
	require.NoError(t, err)

	err = app.CompleteLogin(ctx, flow)
	assert.ErrorIs(t, err, vault.ErrLoginTimeout)
	assert.False(t, app.LoggedIn())
	assert.Equal(t, defaultPollAttempts, srv.PollCount())

	notes := drain(app)
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyLoginTimeout, notes[0].Kind)
}

func TestApp_AttemptLoginValidation(t *testing.T) {
	app := newTestApp(t, NewMemoryStorage())

	_, err := app.AttemptLogin(context.Background(), "not a url")
	assert.ErrorIs(t, err, vault.ErrValidation)

	notes := drain(app)
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyValidationFailed, notes[0].Kind)
}

func TestApp_LoginWithWrongAppPassword(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	app := newTestApp(t, NewMemoryStorage())

	creds := srv.Credentials()
	creds.AppPassword = "wrong"
	err := app.LoginWithAppPassword(context.Background(), creds)
	assert.ErrorIs(t, err, vault.ErrRequestFailed)
	assert.False(t, app.LoggedIn())
}

func TestApp_RestoreSession(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	srv.SeedPassword(vault.Password{Label: "Mail", Password: "secret-secret"})

	storage := NewMemoryStorage()
	first := newTestApp(t, storage)
	require.NoError(t, first.LoginWithAppPassword(context.Background(), srv.Credentials()))

	second := newTestApp(t, storage)
	assert.True(t, second.LoggedIn())
	require.NoError(t, second.Refresh(context.Background(), false, false))

	passwords, err := second.Passwords()
	require.NoError(t, err)
	assert.Len(t, passwords, 1)
}

func TestApp_RestoreSessionWithForeignKey(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, saveSession(storage, vault.Credentials{Server: "https://cloud.example.com", LoginName: "alice"}, "garbage"))

	app := newTestApp(t, storage)
	assert.False(t, app.LoggedIn())
}

func TestApp_LockGatesVault(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	app := loggedInApp(t, srv)
	ctx := context.Background()

	require.NoError(t, app.EnablePIN("1234"))
	assert.Equal(t, lock.Unlocked, app.LockState())

	app.Lock()
	assert.ErrorIs(t, app.Refresh(ctx, true, true), vault.ErrLocked)
	_, err := app.Passwords()
	assert.ErrorIs(t, err, vault.ErrLocked)
	_, err = app.Listing()
	assert.ErrorIs(t, err, vault.ErrLocked)
	assert.Equal(t, 0, srv.Hits("GET /password/list"))

	err = app.Unlock(ctx, "0000")
	assert.ErrorIs(t, err, vault.ErrWrongCredential)
	assert.Equal(t, lock.Locked, app.LockState())

	notes := drain(app)
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyWrongCredential, notes[0].Kind)

	require.NoError(t, app.Unlock(ctx, "1234"))
	assert.NoError(t, app.Refresh(ctx, true, true))
}

func TestApp_TimeoutImmediateRunsPendingOnce(t *testing.T) {
	storage := NewMemoryStorage()
	app := newTestApp(t, storage)
	ctx := context.Background()

	require.NoError(t, app.EnablePIN("1234"))
	require.NoError(t, app.SetLockTimeout(lock.TimeoutImmediate))

	app.Background(time.Now())
	assert.Equal(t, lock.Locked, app.LockState())
	require.NoError(t, app.Unlock(ctx, "1234"))

	deferred, err := app.RequestSensitive(ctx, lock.DisablePIN())
	require.NoError(t, err)
	assert.True(t, deferred)
	assert.Equal(t, lock.Locked, app.LockState())

	// Вторая постановка в очередь отклоняется
	_, err = app.RequestSensitive(ctx, lock.ResetPreferences())
	assert.ErrorIs(t, err, lock.ErrIntentPending)

	require.NoError(t, app.Unlock(ctx, "1234"))
	assert.Equal(t, lock.Unlocked, app.LockState())
	_, pending := app.PendingIntent()
	assert.False(t, pending)

	assert.Empty(t, app.Preferences().PINHash)
	_, ok, err := storage.GetPreference(prefPIN)
	require.NoError(t, err)
	assert.False(t, ok)

	// Без PIN-кода уход в фон больше не блокирует
	app.Background(time.Now())
	assert.Equal(t, lock.Unlocked, app.LockState())
}

func TestApp_TimeoutNeverStaysUnlocked(t *testing.T) {
	app := newTestApp(t, NewMemoryStorage())

	require.NoError(t, app.EnablePIN("1234"))
	require.NoError(t, app.SetLockTimeout(lock.TimeoutNever))

	now := time.Now()
	app.Background(now)
	app.Foreground(now.Add(time.Hour))
	assert.Equal(t, lock.Unlocked, app.LockState())
}

func TestApp_ChangePIN(t *testing.T) {
	app := newTestApp(t, NewMemoryStorage())
	ctx := context.Background()

	_, err := app.RequestSensitive(ctx, lock.ChangePIN("5678"))
	assert.ErrorIs(t, err, lock.ErrNoPIN)

	require.NoError(t, app.EnablePIN("1234"))

	_, err = app.RequestSensitive(ctx, lock.ChangePIN("12"))
	assert.ErrorIs(t, err, vault.ErrValidation)

	deferred, err := app.RequestSensitive(ctx, lock.ChangePIN("5678"))
	require.NoError(t, err)
	assert.True(t, deferred)

	require.NoError(t, app.Unlock(ctx, "1234"))
	app.Lock()
	assert.ErrorIs(t, app.Unlock(ctx, "1234"), vault.ErrWrongCredential)
	assert.NoError(t, app.Unlock(ctx, "5678"))
}

func TestApp_BiometricUnlockRunsIntent(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	app := loggedInApp(t, srv)
	ctx := context.Background()

	assert.ErrorIs(t, app.SetBiometric(true), lock.ErrNoPIN)
	require.NoError(t, app.EnablePIN("1234"))
	require.NoError(t, app.SetBiometric(true))

	deferred, err := app.AttemptLogout(ctx, false)
	require.NoError(t, err)
	assert.True(t, deferred)
	assert.True(t, app.LoggedIn())

	require.NoError(t, app.BeginBiometric())
	assert.Equal(t, lock.AwaitingBiometric, app.LockState())
	assert.ErrorIs(t, app.CompleteBiometric(ctx, false), vault.ErrWrongCredential)
	assert.Equal(t, lock.Locked, app.LockState())

	require.NoError(t, app.BeginBiometric())
	require.NoError(t, app.CompleteBiometric(ctx, true))
	assert.False(t, app.LoggedIn())
	assert.True(t, srv.Revoked())
}

func TestApp_FailedIntentStaysPending(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	app := loggedInApp(t, srv)
	ctx := context.Background()

	require.NoError(t, app.EnablePIN("1234"))
	srv.Fail("DELETE /ocs/v2.php/core/apppassword", true)

	deferred, err := app.AttemptLogout(ctx, false)
	require.NoError(t, err)
	require.True(t, deferred)

	assert.ErrorIs(t, app.Unlock(ctx, "1234"), vault.ErrRequestFailed)
	assert.True(t, app.LoggedIn())
	assert.Equal(t, lock.Locked, app.LockState())
	intent, ok := app.PendingIntent()
	require.True(t, ok)
	assert.Equal(t, lock.IntentLogout, intent.Kind)

	srv.Fail("DELETE /ocs/v2.php/core/apppassword", false)
	require.NoError(t, app.Unlock(ctx, "1234"))
	assert.False(t, app.LoggedIn())
	assert.True(t, srv.Revoked())
	_, ok = app.PendingIntent()
	assert.False(t, ok)
}

func TestApp_Logout(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	srv.SeedPassword(vault.Password{Label: "Mail", Password: "secret-secret", URL: "https://mail.example.com"})

	storage := NewMemoryStorage()
	app := newTestApp(t, storage)
	ctx := context.Background()
	require.NoError(t, app.LoginWithAppPassword(ctx, srv.Credentials()))
	require.NoError(t, app.Refresh(ctx, true, true))

	passwords, err := app.Passwords()
	require.NoError(t, err)
	require.NoError(t, app.LoadFavicon(passwords[0].ID))
	oldVault := app.currentVault()

	deferred, err := app.AttemptLogout(ctx, false)
	require.NoError(t, err)
	assert.False(t, deferred)

	assert.False(t, app.LoggedIn())
	assert.True(t, srv.Revoked())
	assert.NotSame(t, oldVault, app.currentVault())
	assert.True(t, app.currentVault().Credentials().Empty())

	passwords, err = app.Passwords()
	require.NoError(t, err)
	assert.Empty(t, passwords)

	_, ok, err := storage.GetPreference(prefAppPassword)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = app.AttemptLogout(ctx, false)
	assert.ErrorIs(t, err, vault.ErrNotLoggedIn)
	assert.ErrorIs(t, app.Refresh(ctx, false, false), vault.ErrNotLoggedIn)
}

func TestApp_ForceLogout(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	app := loggedInApp(t, srv)
	ctx := context.Background()

	srv.Fail("DELETE /ocs/v2.php/core/apppassword", true)

	_, err := app.AttemptLogout(ctx, false)
	assert.ErrorIs(t, err, vault.ErrRequestFailed)
	assert.True(t, app.LoggedIn())

	_, err = app.AttemptLogout(ctx, true)
	require.NoError(t, err)
	assert.False(t, app.LoggedIn())
}

func TestApp_ResetPreferencesKeepsSession(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	storage := NewMemoryStorage()
	app := newTestApp(t, storage)
	ctx := context.Background()
	require.NoError(t, app.LoginWithAppPassword(ctx, srv.Credentials()))

	require.NoError(t, app.SetShowTags(false))
	require.NoError(t, app.SetAutostart(true))
	require.NoError(t, app.EnablePIN("1234"))

	deferred, err := app.ResetPreferences(ctx)
	require.NoError(t, err)
	assert.True(t, deferred)
	require.NoError(t, app.Unlock(ctx, "1234"))

	prefs := app.Preferences()
	assert.True(t, prefs.ShowTags)
	assert.False(t, prefs.Autostart)
	assert.Empty(t, prefs.PINHash)
	assert.True(t, prefs.HasSession())

	reloaded, err := LoadPreferences(storage)
	require.NoError(t, err)
	assert.Equal(t, prefs, reloaded)
}

func TestApp_NotificationsNeverBlock(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()

	cfg := testConfig(t)
	cfg.NotificationBuffer = 1
	app, err := NewWithDependencies(cfg, logger.Discard(), Dependencies{
		Storage:  NewMemoryStorage(),
		Box:      testBox(t),
		NewVault: func() Vault { return NewHTTPClient(cfg, logger.Discard()) },
	})
	require.NoError(t, err)
	defer app.Shutdown()
	require.NoError(t, app.LoginWithAppPassword(context.Background(), srv.Credentials()))

	srv.Fail("GET /password/list", true)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, app.Refresh(context.Background(), false, false), vault.ErrRequestFailed)
	}

	notes := drain(app)
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyRequestFailed, notes[0].Kind)
}

func TestApp_Start(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	app := loggedInApp(t, srv)
	ctx := context.Background()

	// Вход проверяет пароль приложения запросом списка тегов
	tagHits := srv.Hits("GET /tag/list")

	require.NoError(t, app.Start(ctx))
	assert.Equal(t, 0, srv.Hits("GET /password/list"))

	require.NoError(t, app.SetAutostart(true))
	require.NoError(t, app.SetShowTags(false))
	require.NoError(t, app.Start(ctx))
	assert.Equal(t, 1, srv.Hits("GET /password/list"))
	assert.Equal(t, 1, srv.Hits("GET /folder/list"))
	assert.Equal(t, tagHits, srv.Hits("GET /tag/list"))
}

func TestApp_Navigation(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	work := srv.SeedFolder(vault.Folder{Label: "Work", Parent: vault.BaseFolderID})
	servers := srv.SeedFolder(vault.Folder{Label: "Servers", Parent: work.ID})
	srv.SeedPassword(vault.Password{Label: "GitLab", Password: "secret-secret", Folder: work.ID})
	srv.SeedPassword(vault.Password{Label: "Router", Password: "secret-secret"})

	app := loggedInApp(t, srv)
	ctx := context.Background()
	require.NoError(t, app.Refresh(ctx, true, false))

	listing, err := app.Listing()
	require.NoError(t, err)
	assert.True(t, listing.Folder.IsBase())
	require.Len(t, listing.Subfolders, 1)
	assert.Equal(t, work.ID, listing.Subfolders[0].ID)
	require.Len(t, listing.Passwords, 1)
	assert.Equal(t, "Router", listing.Passwords[0].Label)

	require.NoError(t, app.OpenFolder(work.ID))
	require.NoError(t, app.OpenFolder(servers.ID))
	assert.Equal(t, servers.ID, app.CurrentFolder().ID)

	assert.True(t, app.Back())
	listing, err = app.Listing()
	require.NoError(t, err)
	assert.Equal(t, "Work", listing.Folder.Label)
	require.Len(t, listing.Passwords, 1)
	assert.Equal(t, "GitLab", listing.Passwords[0].Label)

	assert.ErrorIs(t, app.OpenFolder("missing"), vault.ErrNotFound)

	// Удаленная папка пропадает из истории
	require.NoError(t, app.OpenFolder(servers.ID))
	require.NoError(t, app.DeleteFolder(ctx, servers.ID))
	assert.Equal(t, work.ID, app.CurrentFolder().ID)

	assert.True(t, app.Back())
	assert.False(t, app.Back())
	assert.True(t, app.CurrentFolder().IsBase())
}
