package client

import (
	"fmt"

	"ncpass/internal/domain/vault"
)

// Listing - содержимое текущей папки
type Listing struct {
	Folder     vault.Folder
	Subfolders []vault.Folder
	Passwords  []vault.Password
}

// OpenFolder переходит в папку. Переход в базовую папку сбрасывает историю.
func (a *App) OpenFolder(id string) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	if id == "" || id == vault.BaseFolderID {
		a.mu.Lock()
		a.nav = nil
		a.mu.Unlock()
		return nil
	}

	if _, ok := a.mirror.Folder(id); !ok {
		return fmt.Errorf("%w: folder %s", vault.ErrNotFound, id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.nav); n == 0 || a.nav[n-1] != id {
		a.nav = append(a.nav, id)
	}
	return nil
}

// Back возвращается в предыдущую папку; false, если уже в базовой
func (a *App) Back() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.nav) == 0 {
		return false
	}
	a.nav = a.nav[:len(a.nav)-1]
	return true
}

func (a *App) currentFolderID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.nav) == 0 {
		return vault.BaseFolderID
	}
	return a.nav[len(a.nav)-1]
}

func (a *App) CurrentFolder() vault.Folder {
	if f, ok := a.mirror.Folder(a.currentFolderID()); ok {
		return f
	}
	return vault.BaseFolder()
}

// Listing возвращает подпапки и записи текущей папки
func (a *App) Listing() (Listing, error) {
	if err := a.requireUnlocked(); err != nil {
		return Listing{}, err
	}

	folder := a.CurrentFolder()
	return Listing{
		Folder:     folder,
		Subfolders: a.mirror.Subfolders(folder.ID),
		Passwords:  a.mirror.PasswordsInFolder(folder.ID),
	}, nil
}

// dropMissingNavigation убирает из истории папки, которых больше нет в зеркале
func (a *App) dropMissingNavigation() {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.nav[:0]
	for _, id := range a.nav {
		if _, ok := a.mirror.Folder(id); ok {
			kept = append(kept, id)
		}
	}
	a.nav = kept
}
