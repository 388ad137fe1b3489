package client

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"ncpass/internal/domain/vault"
)

// keyedMutex упорядочивает изменения одной записи: повторные запросы
// для того же id выполняются по очереди, последний побеждает
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// ==================== Refresh ====================

// Refresh загружает записи заново; папки и теги - только если запрошено
func (a *App) Refresh(ctx context.Context, includeFolders, includeTags bool) error {
	if err := a.ready(); err != nil {
		return err
	}

	done := a.begin()
	defer done()

	v := a.currentVault()
	snapshot := Snapshot{IncludeFolders: includeFolders, IncludeTags: includeTags}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		passwords, err := v.ListPasswords(gctx)
		snapshot.Passwords = passwords
		return err
	})
	if includeFolders {
		g.Go(func() error {
			folders, err := v.ListFolders(gctx)
			snapshot.Folders = folders
			return err
		})
	}
	if includeTags {
		g.Go(func() error {
			tags, err := v.ListTags(gctx)
			snapshot.Tags = tags
			return err
		})
	}

	if err := g.Wait(); err != nil {
		a.report(err)
		return err
	}

	a.mirror.Replace(snapshot)
	a.dropMissingNavigation()

	a.log.Debug("Хранилище обновлено",
		slog.Int("passwords", len(snapshot.Passwords)),
		slog.Bool("folders", includeFolders),
		slog.Bool("tags", includeTags),
	)
	return nil
}

// RefreshAll обновляет все, что включено в настройках отображения
func (a *App) RefreshAll(ctx context.Context) error {
	prefs := a.Preferences()
	return a.Refresh(ctx, prefs.ShowFolders, prefs.ShowTags)
}

// ==================== Passwords ====================

func (a *App) Passwords() ([]vault.Password, error) {
	if err := a.requireUnlocked(); err != nil {
		return nil, err
	}
	return a.mirror.Passwords(), nil
}

func (a *App) Password(id string) (vault.Password, error) {
	if err := a.requireUnlocked(); err != nil {
		return vault.Password{}, err
	}
	p, ok := a.mirror.Password(id)
	if !ok {
		return p, fmt.Errorf("%w: password %s", vault.ErrNotFound, id)
	}
	return p, nil
}

func (a *App) Search(query string) ([]vault.Password, error) {
	if err := a.requireUnlocked(); err != nil {
		return nil, err
	}
	return a.mirror.Search(query), nil
}

func (a *App) Favorites() ([]vault.Password, error) {
	if err := a.requireUnlocked(); err != nil {
		return nil, err
	}
	return a.mirror.Favorites(), nil
}

func (a *App) PasswordsWithTag(tagID string) ([]vault.Password, error) {
	if err := a.requireUnlocked(); err != nil {
		return nil, err
	}
	return a.mirror.PasswordsWithTag(tagID), nil
}

// CreatePassword создает запись и добавляет ее в зеркало в том виде,
// в каком ее вернул сервер
func (a *App) CreatePassword(ctx context.Context, req vault.PasswordRequest) (vault.Password, error) {
	if err := a.ready(); err != nil {
		return vault.Password{}, err
	}
	if err := a.validatePassword(req); err != nil {
		return vault.Password{}, err
	}

	done := a.begin()
	defer done()

	v := a.currentVault()
	id, err := v.CreatePassword(ctx, req)
	if err != nil {
		a.report(err)
		return vault.Password{}, err
	}

	unlock := a.entities.Lock(id)
	defer unlock()

	p, err := v.ShowPassword(ctx, id)
	if err != nil {
		a.report(err)
		return vault.Password{}, err
	}

	a.mirror.ApplyCreatePassword(p)
	a.RequestFavicon(RecordFavicon{PasswordID: p.ID, URL: p.URL})

	a.log.Info("Запись создана", slog.String("id", p.ID))
	return p, nil
}

// UpdatePassword обновляет запись; при смене URL иконка загружается заново
func (a *App) UpdatePassword(ctx context.Context, id string, req vault.PasswordRequest) (vault.Password, error) {
	if err := a.ready(); err != nil {
		return vault.Password{}, err
	}
	if err := a.validatePassword(req); err != nil {
		return vault.Password{}, err
	}

	unlock := a.entities.Lock(id)
	defer unlock()

	done := a.begin()
	defer done()

	v := a.currentVault()
	if _, err := v.UpdatePassword(ctx, id, req); err != nil {
		a.report(err)
		return vault.Password{}, err
	}

	p, err := v.ShowPassword(ctx, id)
	if err != nil {
		a.report(err)
		return vault.Password{}, err
	}

	urlChanged, err := a.mirror.ApplyUpdatePassword(id, p)
	if err != nil {
		// Записи не было в зеркале (например, до первого обновления)
		a.mirror.ApplyCreatePassword(p)
		urlChanged = true
	}
	if urlChanged {
		a.RequestFavicon(RecordFavicon{PasswordID: p.ID, URL: p.URL})
	}

	p, _ = a.mirror.Password(id)
	a.log.Info("Запись обновлена", slog.String("id", id), slog.Bool("url_changed", urlChanged))
	return p, nil
}

func (a *App) DeletePassword(ctx context.Context, id string) error {
	if err := a.ready(); err != nil {
		return err
	}

	unlock := a.entities.Lock(id)
	defer unlock()

	done := a.begin()
	defer done()

	if err := a.currentVault().DeletePassword(ctx, id); err != nil {
		a.report(err)
		return err
	}

	a.mirror.ApplyDeletePassword(id)
	a.log.Info("Запись удалена", slog.String("id", id))
	return nil
}

// GeneratePassword запрашивает случайный пароль у сервера
func (a *App) GeneratePassword(ctx context.Context) (string, error) {
	if err := a.ready(); err != nil {
		return "", err
	}

	done := a.begin()
	defer done()

	generated, err := a.currentVault().GeneratePassword(ctx)
	if err != nil {
		a.report(err)
		return "", err
	}
	return generated, nil
}

func (a *App) validatePassword(req vault.PasswordRequest) error {
	err := req.Validate()
	if err == nil {
		err = a.checkFolderRef(req.Folder)
	}
	if err == nil {
		err = a.checkTagRefs(req.TagIDs)
	}
	if err != nil {
		a.report(err)
	}
	return err
}

// checkFolderRef проверяет, что папка существует в зеркале или является базовой
// checkFolderRef отклоняет неизвестную папку только после загрузки списка
// папок; если папки не загружались, проверку выполняет сервер.
func (a *App) checkFolderRef(id string) error {
	if id == "" || id == vault.BaseFolderID || !a.mirror.FoldersLoaded() {
		return nil
	}
	if _, ok := a.mirror.Folder(id); !ok {
		return fmt.Errorf("%w: unknown folder %s", vault.ErrValidation, id)
	}
	return nil
}

func (a *App) checkTagRefs(ids []string) error {
	if !a.mirror.TagsLoaded() {
		return nil
	}
	for _, id := range ids {
		if _, ok := a.mirror.Tag(id); !ok {
			return fmt.Errorf("%w: unknown tag %s", vault.ErrValidation, id)
		}
	}
	return nil
}

// ==================== Folders ====================

func (a *App) Folders() ([]vault.Folder, error) {
	if err := a.requireUnlocked(); err != nil {
		return nil, err
	}
	return a.mirror.Folders(), nil
}

func (a *App) CreateFolder(ctx context.Context, req vault.FolderRequest) (vault.Folder, error) {
	if err := a.ready(); err != nil {
		return vault.Folder{}, err
	}
	if err := a.validateFolder(req); err != nil {
		return vault.Folder{}, err
	}

	done := a.begin()
	defer done()

	v := a.currentVault()
	id, err := v.CreateFolder(ctx, req)
	if err != nil {
		a.report(err)
		return vault.Folder{}, err
	}

	unlock := a.entities.Lock(id)
	defer unlock()

	f, err := v.ShowFolder(ctx, id)
	if err != nil {
		a.report(err)
		return vault.Folder{}, err
	}

	if err := a.mirror.ApplyCreateFolder(f); err != nil {
		return vault.Folder{}, err
	}

	a.log.Info("Папка создана", slog.String("id", f.ID))
	return f, nil
}

func (a *App) UpdateFolder(ctx context.Context, id string, req vault.FolderRequest) (vault.Folder, error) {
	if err := a.ready(); err != nil {
		return vault.Folder{}, err
	}
	if id == vault.BaseFolderID {
		err := fmt.Errorf("%w: base folder cannot be changed", vault.ErrValidation)
		a.report(err)
		return vault.Folder{}, err
	}
	if req.Parent == id {
		err := fmt.Errorf("%w: folder cannot be its own parent", vault.ErrValidation)
		a.report(err)
		return vault.Folder{}, err
	}
	if err := a.validateFolder(req); err != nil {
		return vault.Folder{}, err
	}

	unlock := a.entities.Lock(id)
	defer unlock()

	done := a.begin()
	defer done()

	v := a.currentVault()
	if _, err := v.UpdateFolder(ctx, id, req); err != nil {
		a.report(err)
		return vault.Folder{}, err
	}

	f, err := v.ShowFolder(ctx, id)
	if err != nil {
		a.report(err)
		return vault.Folder{}, err
	}

	if err := a.mirror.ApplyUpdateFolder(id, f); err != nil {
		if err := a.mirror.ApplyCreateFolder(f); err != nil {
			return vault.Folder{}, err
		}
	}

	a.log.Info("Папка обновлена", slog.String("id", id))
	return f, nil
}

func (a *App) DeleteFolder(ctx context.Context, id string) error {
	if err := a.ready(); err != nil {
		return err
	}
	if id == vault.BaseFolderID {
		err := fmt.Errorf("%w: base folder cannot be deleted", vault.ErrValidation)
		a.report(err)
		return err
	}

	unlock := a.entities.Lock(id)
	defer unlock()

	done := a.begin()
	defer done()

	if err := a.currentVault().DeleteFolder(ctx, id); err != nil {
		a.report(err)
		return err
	}

	a.mirror.ApplyDeleteFolder(id)
	a.dropMissingNavigation()

	a.log.Info("Папка удалена", slog.String("id", id))
	return nil
}

func (a *App) validateFolder(req vault.FolderRequest) error {
	err := req.Validate()
	if err == nil {
		err = a.checkFolderRef(req.Parent)
	}
	if err != nil {
		a.report(err)
	}
	return err
}

// ==================== Tags ====================

func (a *App) Tags() ([]vault.Tag, error) {
	if err := a.requireUnlocked(); err != nil {
		return nil, err
	}
	return a.mirror.Tags(), nil
}

func (a *App) CreateTag(ctx context.Context, req vault.TagRequest) (vault.Tag, error) {
	if err := a.ready(); err != nil {
		return vault.Tag{}, err
	}
	if err := req.Validate(); err != nil {
		a.report(err)
		return vault.Tag{}, err
	}

	done := a.begin()
	defer done()

	v := a.currentVault()
	id, err := v.CreateTag(ctx, req)
	if err != nil {
		a.report(err)
		return vault.Tag{}, err
	}

	unlock := a.entities.Lock(id)
	defer unlock()

	t, err := v.ShowTag(ctx, id)
	if err != nil {
		a.report(err)
		return vault.Tag{}, err
	}

	a.mirror.ApplyCreateTag(t)
	a.log.Info("Тег создан", slog.String("id", t.ID))
	return t, nil
}

func (a *App) UpdateTag(ctx context.Context, id string, req vault.TagRequest) (vault.Tag, error) {
	if err := a.ready(); err != nil {
		return vault.Tag{}, err
	}
	if err := req.Validate(); err != nil {
		a.report(err)
		return vault.Tag{}, err
	}

	unlock := a.entities.Lock(id)
	defer unlock()

	done := a.begin()
	defer done()

	v := a.currentVault()
	if _, err := v.UpdateTag(ctx, id, req); err != nil {
		a.report(err)
		return vault.Tag{}, err
	}

	t, err := v.ShowTag(ctx, id)
	if err != nil {
		a.report(err)
		return vault.Tag{}, err
	}

	if err := a.mirror.ApplyUpdateTag(id, t); err != nil {
		a.mirror.ApplyCreateTag(t)
	}

	a.log.Info("Тег обновлен", slog.String("id", id))
	return t, nil
}

func (a *App) DeleteTag(ctx context.Context, id string) error {
	if err := a.ready(); err != nil {
		return err
	}

	unlock := a.entities.Lock(id)
	defer unlock()

	done := a.begin()
	defer done()

	if err := a.currentVault().DeleteTag(ctx, id); err != nil {
		a.report(err)
		return err
	}

	a.mirror.ApplyDeleteTag(id)
	a.log.Info("Тег удален", slog.String("id", id))
	return nil
}
