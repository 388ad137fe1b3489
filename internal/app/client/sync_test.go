package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ncpass/internal/app/client/vaulttest"
	"ncpass/internal/domain/vault"
	"ncpass/internal/utils/logger"
)

type mockVault struct {
	mock.Mock
}

func (m *mockVault) Login(creds vault.Credentials) { m.Called(creds) }

func (m *mockVault) Credentials() vault.Credentials {
	return m.Called().Get(0).(vault.Credentials)
}

func (m *mockVault) StartLogin(ctx context.Context, serverURL string) (vault.LoginFlow, error) {
	args := m.Called(ctx, serverURL)
	return args.Get(0).(vault.LoginFlow), args.Error(1)
}

func (m *mockVault) PollLogin(ctx context.Context, endpoint, token string) (*vault.Credentials, error) {
	args := m.Called(ctx, endpoint, token)
	creds, _ := args.Get(0).(*vault.Credentials)
	return creds, args.Error(1)
}

func (m *mockVault) RevokeAppPassword(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockVault) ListPasswords(ctx context.Context) ([]vault.Password, error) {
	args := m.Called(ctx)
	passwords, _ := args.Get(0).([]vault.Password)
	return passwords, args.Error(1)
}

func (m *mockVault) ShowPassword(ctx context.Context, id string) (vault.Password, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(vault.Password), args.Error(1)
}

func (m *mockVault) CreatePassword(ctx context.Context, req vault.PasswordRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockVault) UpdatePassword(ctx context.Context, id string, req vault.PasswordRequest) (string, error) {
	args := m.Called(ctx, id, req)
	return args.String(0), args.Error(1)
}

func (m *mockVault) DeletePassword(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockVault) ListFolders(ctx context.Context) ([]vault.Folder, error) {
	args := m.Called(ctx)
	folders, _ := args.Get(0).([]vault.Folder)
	return folders, args.Error(1)
}

func (m *mockVault) ShowFolder(ctx context.Context, id string) (vault.Folder, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(vault.Folder), args.Error(1)
}

func (m *mockVault) CreateFolder(ctx context.Context, req vault.FolderRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockVault) UpdateFolder(ctx context.Context, id string, req vault.FolderRequest) (string, error) {
	args := m.Called(ctx, id, req)
	return args.String(0), args.Error(1)
}

func (m *mockVault) DeleteFolder(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockVault) ListTags(ctx context.Context) ([]vault.Tag, error) {
	args := m.Called(ctx)
	tags, _ := args.Get(0).([]vault.Tag)
	return tags, args.Error(1)
}

func (m *mockVault) ShowTag(ctx context.Context, id string) (vault.Tag, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(vault.Tag), args.Error(1)
}

func (m *mockVault) CreateTag(ctx context.Context, req vault.TagRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockVault) UpdateTag(ctx context.Context, id string, req vault.TagRequest) (string, error) {
	args := m.Called(ctx, id, req)
	return args.String(0), args.Error(1)
}

func (m *mockVault) DeleteTag(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockVault) GeneratePassword(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockVault) Favicon(ctx context.Context, host string) ([]byte, error) {
	args := m.Called(ctx, host)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// newMockedApp создает App с восстановленной сессией поверх mockVault
func newMockedApp(t *testing.T) (*App, *mockVault) {
	t.Helper()

	box := testBox(t)
	storage := NewMemoryStorage()
	sealed, err := box.Seal("app-password")
	require.NoError(t, err)
	require.NoError(t, saveSession(storage, vault.Credentials{Server: "https://cloud.example.com", LoginName: "alice"}, sealed))

	m := &mockVault{}
	m.On("Login", mock.Anything).Return()

	app, err := NewWithDependencies(testConfig(t), logger.Discard(), Dependencies{
		Storage:  storage,
		Box:      box,
		NewVault: func() Vault { return m },
	})
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)
	require.True(t, app.LoggedIn())
	return app, m
}

func failure() error {
	return vault.RequestFailed("test", errors.New("connection refused"))
}

func TestRefresh_FailureKeepsMirror(t *testing.T) {
	app, m := newMockedApp(t)
	ctx := context.Background()

	m.On("ListPasswords", mock.Anything).Return([]vault.Password{{ID: "1", Label: "Mail"}}, nil).Once()
	m.On("ListFolders", mock.Anything).Return([]vault.Folder{}, nil).Once()
	m.On("ListTags", mock.Anything).Return([]vault.Tag{}, nil).Once()
	require.NoError(t, app.Refresh(ctx, true, true))

	m.On("ListPasswords", mock.Anything).Return(nil, failure()).Once()
	m.On("ListFolders", mock.Anything).Return([]vault.Folder{}, nil).Once()
	err := app.Refresh(ctx, true, false)
	assert.ErrorIs(t, err, vault.ErrRequestFailed)
	assert.False(t, app.Refreshing())

	passwords, err := app.Passwords()
	require.NoError(t, err)
	assert.Len(t, passwords, 1)

	notes := drain(app)
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyRequestFailed, notes[0].Kind)

	m.AssertNumberOfCalls(t, "ListTags", 1)
}

func TestCreatePassword_ShowFailureLeavesMirror(t *testing.T) {
	app, m := newMockedApp(t)
	ctx := context.Background()
	id := uuid.NewString()
	req := vault.PasswordRequest{Label: "Mail", Password: "secret"}

	m.On("CreatePassword", mock.Anything, req).Return(id, nil).Once()
	m.On("ShowPassword", mock.Anything, id).Return(vault.Password{}, failure()).Once()

	_, err := app.CreatePassword(ctx, req)
	assert.ErrorIs(t, err, vault.ErrRequestFailed)

	passwords, err := app.Passwords()
	require.NoError(t, err)
	assert.Empty(t, passwords)
	m.AssertExpectations(t)
}

func TestGeneratePassword_Failure(t *testing.T) {
	app, m := newMockedApp(t)

	m.On("GeneratePassword", mock.Anything).Return("", failure()).Once()

	generated, err := app.GeneratePassword(context.Background())
	assert.ErrorIs(t, err, vault.ErrRequestFailed)
	assert.Empty(t, generated)

	notes := drain(app)
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyRequestFailed, notes[0].Kind)
}

func TestValidation_NoRequestIssued(t *testing.T) {
	app, m := newMockedApp(t)
	ctx := context.Background()

	// Ссылки на папки и теги проверяются локально только после их загрузки
	m.On("ListPasswords", mock.Anything).Return([]vault.Password{}, nil).Once()
	m.On("ListFolders", mock.Anything).Return([]vault.Folder{}, nil).Once()
	m.On("ListTags", mock.Anything).Return([]vault.Tag{}, nil).Once()
	require.NoError(t, app.Refresh(ctx, true, true))
	calls := len(m.Calls)

	tests := []struct {
		name string
		call func() error
	}{
		{
			name: "password without label",
			call: func() error {
				_, err := app.CreatePassword(ctx, vault.PasswordRequest{Password: "secret"})
				return err
			},
		},
		{
			name: "password in unknown folder",
			call: func() error {
				_, err := app.CreatePassword(ctx, vault.PasswordRequest{Label: "Mail", Password: "secret", Folder: uuid.NewString()})
				return err
			},
		},
		{
			name: "password with unknown tag",
			call: func() error {
				_, err := app.CreatePassword(ctx, vault.PasswordRequest{Label: "Mail", Password: "secret", TagIDs: []string{uuid.NewString()}})
				return err
			},
		},
		{
			name: "tag with bad color",
			call: func() error {
				_, err := app.CreateTag(ctx, vault.TagRequest{Label: "work", Color: "red"})
				return err
			},
		},
		{
			name: "base folder delete",
			call: func() error { return app.DeleteFolder(ctx, vault.BaseFolderID) },
		},
		{
			name: "base folder update",
			call: func() error {
				_, err := app.UpdateFolder(ctx, vault.BaseFolderID, vault.FolderRequest{Label: "Root"})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), vault.ErrValidation)
		})
	}

	// После обновления запросов к серверу не было
	m.AssertNumberOfCalls(t, "Login", 1)
	assert.Len(t, m.Calls, calls)

	notes := drain(app)
	assert.Len(t, notes, len(tests))
	for _, n := range notes {
		assert.Equal(t, NotifyValidationFailed, n.Kind)
	}
}

func TestApp_UpdateWithoutLoadedFolders(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	work := srv.SeedFolder(vault.Folder{Label: "Work", Parent: vault.BaseFolderID})
	seeded := srv.SeedPassword(vault.Password{Label: "Jira", Password: "secret-secret", Folder: work.ID})

	app := loggedInApp(t, srv)
	ctx := context.Background()
	require.NoError(t, app.SetShowFolders(false))
	require.NoError(t, app.RefreshAll(ctx))

	p, err := app.Password(seeded.ID)
	require.NoError(t, err)
	req := vault.PasswordRequestFrom(p)
	req.Notes = "rotated"

	updated, err := app.UpdatePassword(ctx, p.ID, req)
	require.NoError(t, err)
	assert.Equal(t, work.ID, updated.Folder)
	assert.Equal(t, "rotated", updated.Notes)
	assert.Equal(t, 1, srv.Hits("PATCH /password/update"))
	assert.Empty(t, drain(app))
}

func TestApp_UpdateWithoutLoadedTags(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	tag := srv.SeedTag(vault.Tag{Label: "mail", Color: "#ff8800"})
	seeded := srv.SeedPassword(vault.Password{Label: "Webmail", Password: "secret-secret", Tags: []vault.Tag{tag}})

	app := loggedInApp(t, srv)
	ctx := context.Background()
	require.NoError(t, app.SetShowTags(false))
	require.NoError(t, app.RefreshAll(ctx))

	p, err := app.Password(seeded.ID)
	require.NoError(t, err)
	req := vault.PasswordRequestFrom(p)
	require.Equal(t, []string{tag.ID}, req.TagIDs)
	req.Notes = "rotated"

	_, err = app.UpdatePassword(ctx, p.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Hits("PATCH /password/update"))

	// После загрузки тегов неизвестный тег отклоняется локально
	require.NoError(t, app.SetShowTags(true))
	require.NoError(t, app.RefreshAll(ctx))
	req.TagIDs = append(req.TagIDs, uuid.NewString())
	_, err = app.UpdatePassword(ctx, p.ID, req)
	assert.ErrorIs(t, err, vault.ErrValidation)
	assert.Equal(t, 1, srv.Hits("PATCH /password/update"))
}

func TestApp_PasswordMutations(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	app := loggedInApp(t, srv)
	ctx := context.Background()

	tag, err := app.CreateTag(ctx, vault.TagRequest{Label: "mail", Color: "#ff8800"})
	require.NoError(t, err)

	created, err := app.CreatePassword(ctx, vault.PasswordRequest{
		Label:    "Webmail",
		Username: "alice",
		Password: "weakpass9",
		URL:      "https://mail.example.com",
		TagIDs:   []string{tag.ID},
	})
	require.NoError(t, err)
	// Статус вычисляет сервер, в зеркало попадает его представление
	assert.Equal(t, vault.StatusWeak, created.Status)

	for _, label := range []string{"zeta", "Alpha"} {
		_, err := app.CreatePassword(ctx, vault.PasswordRequest{Label: label, Password: "secret-secret"})
		require.NoError(t, err)
	}

	passwords, err := app.Passwords()
	require.NoError(t, err)
	require.Len(t, passwords, 3)
	assert.Equal(t, []string{"Alpha", "Webmail", "zeta"}, []string{passwords[0].Label, passwords[1].Label, passwords[2].Label})

	tagged, err := app.PasswordsWithTag(tag.ID)
	require.NoError(t, err)
	assert.Len(t, tagged, 1)

	req := vault.PasswordRequestFrom(created)
	req.Favorite = true
	updated, err := app.UpdatePassword(ctx, created.ID, req)
	require.NoError(t, err)
	assert.True(t, updated.Favorite)

	favorites, err := app.Favorites()
	require.NoError(t, err)
	assert.Len(t, favorites, 1)

	found, err := app.Search("MAIL.example")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	require.NoError(t, app.DeleteTag(ctx, tag.ID))
	p, err := app.Password(created.ID)
	require.NoError(t, err)
	assert.Empty(t, p.Tags)

	require.NoError(t, app.DeletePassword(ctx, created.ID))
	_, err = app.Password(created.ID)
	assert.ErrorIs(t, err, vault.ErrNotFound)

	passwords, err = app.Passwords()
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "zeta"}, []string{passwords[0].Label, passwords[1].Label})

	generated, err := app.GeneratePassword(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, generated)
	assert.False(t, app.Refreshing())
}

func TestApp_UpdateURLRefetchesFavicon(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	app := loggedInApp(t, srv)
	ctx := context.Background()

	created, err := app.CreatePassword(ctx, vault.PasswordRequest{Label: "Mail", Password: "secret-secret", URL: "https://mail.example.com/login"})
	require.NoError(t, err)
	app.WaitBackground()

	p, err := app.Password(created.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("icon:mail.example.com"), p.Favicon)
	assert.Equal(t, 1, srv.Hits("GET /service/favicon/mail.example.com/256"))

	// Изменение заметок сохраняет иконку без повторного запроса
	req := vault.PasswordRequestFrom(p)
	req.Notes = "recovery codes in the safe"
	_, err = app.UpdatePassword(ctx, created.ID, req)
	require.NoError(t, err)
	app.WaitBackground()

	p, err = app.Password(created.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("icon:mail.example.com"), p.Favicon)
	assert.Equal(t, 1, srv.Hits("GET /service/favicon/mail.example.com/256"))

	req.URL = "https://webmail.example.com"
	_, err = app.UpdatePassword(ctx, created.ID, req)
	require.NoError(t, err)
	app.WaitBackground()

	p, err = app.Password(created.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("icon:webmail.example.com"), p.Favicon)
	assert.Equal(t, 1, srv.Hits("GET /service/favicon/webmail.example.com/256"))
}

func TestApp_FaviconFailureIsSilent(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	srv.Fail("GET /service/favicon/mail.example.com/256", true)
	app := loggedInApp(t, srv)
	ctx := context.Background()

	created, err := app.CreatePassword(ctx, vault.PasswordRequest{Label: "Mail", Password: "secret-secret", URL: "mail.example.com"})
	require.NoError(t, err)
	app.WaitBackground()

	p, err := app.Password(created.ID)
	require.NoError(t, err)
	assert.Nil(t, p.Favicon)
	assert.Empty(t, drain(app))

	_, ok := app.FaviconForURL(ctx, "https://mail.example.com")
	assert.False(t, ok)

	data, ok := app.FaviconForURL(ctx, "https://other.example.com")
	assert.True(t, ok)
	assert.Equal(t, []byte("icon:other.example.com"), data)

	// Второй запрос берется из кэша
	_, ok = app.FaviconForURL(ctx, "https://other.example.com/path")
	assert.True(t, ok)
	assert.Equal(t, 1, srv.Hits("GET /service/favicon/other.example.com/256"))
}

func TestApp_AdHocFavicon(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	app := loggedInApp(t, srv)

	var got []byte
	app.RequestFavicon(AdHocURLFavicon{URL: "https://news.example.com", Done: func(data []byte) { got = data }})
	app.WaitBackground()

	assert.Equal(t, []byte("icon:news.example.com"), got)
}

func TestApp_FolderCreateScenario(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	srv.SeedFolder(vault.Folder{Label: "Banking", Parent: vault.BaseFolderID})
	srv.SeedFolder(vault.Folder{Label: "Zeta", Parent: vault.BaseFolderID})

	app := loggedInApp(t, srv)
	ctx := context.Background()
	require.NoError(t, app.Refresh(ctx, true, true))

	before, err := app.Folders()
	require.NoError(t, err)

	work, err := app.CreateFolder(ctx, vault.FolderRequest{Label: "Work", Parent: vault.BaseFolderID})
	require.NoError(t, err)

	folders, err := app.Folders()
	require.NoError(t, err)
	require.Len(t, folders, len(before)+1)
	assert.True(t, folders[0].IsBase())

	var labels []string
	for _, f := range folders[1:] {
		labels = append(labels, f.Label)
	}
	assert.Equal(t, []string{"Banking", "Work", "Zeta"}, labels)

	renamed, err := app.UpdateFolder(ctx, work.ID, vault.FolderRequest{Label: "Apps", Parent: vault.BaseFolderID})
	require.NoError(t, err)
	assert.Equal(t, "Apps", renamed.Label)

	folders, err = app.Folders()
	require.NoError(t, err)
	assert.True(t, folders[0].IsBase())
	assert.Equal(t, "Apps", folders[1].Label)

	_, err = app.UpdateFolder(ctx, work.ID, vault.FolderRequest{Label: "Loop", Parent: work.ID})
	assert.ErrorIs(t, err, vault.ErrValidation)
}

func TestApp_ConcurrentUpdatesSameRecord(t *testing.T) {
	srv := vaulttest.NewServer()
	defer srv.Close()
	app := loggedInApp(t, srv)
	ctx := context.Background()

	created, err := app.CreatePassword(ctx, vault.PasswordRequest{Label: "Mail", Password: "secret-secret"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := vault.PasswordRequestFrom(created)
			req.Notes = uuid.NewString()
			_, err := app.UpdatePassword(ctx, created.ID, req)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	passwords, err := app.Passwords()
	require.NoError(t, err)
	require.Len(t, passwords, 1)
	assert.Equal(t, 8, srv.Hits("PATCH /password/update"))
	assert.False(t, app.Refreshing())
}

func TestKeyedMutex(t *testing.T) {
	var k keyedMutex
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("record")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, k.locks)

	// Разные ключи не блокируют друг друга
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	unlockB()
	unlockA()
}

func TestFaviconHost(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://Mail.Example.com/login?x=1", want: "mail.example.com"},
		{in: "mail.example.com", want: "mail.example.com"},
		{in: "http://10.0.0.1:8080", want: "10.0.0.1"},
		{in: "", wantErr: true},
		{in: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := faviconHost(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTaskSet_CloseCancelsAndJoins(t *testing.T) {
	ts := newTaskSet(1)
	started := make(chan struct{})

	assert.True(t, ts.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	// Вторая задача ждет семафор и завершается по отмене
	assert.True(t, ts.Go(func(ctx context.Context) {}))

	<-started
	ts.Close()

	assert.False(t, ts.Go(func(ctx context.Context) {}))
}
