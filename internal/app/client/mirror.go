package client

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"ncpass/internal/domain/vault"
)

type mirrored interface {
	RecordID() string
	SortLabel() string
}

// Mirror - локальная копия коллекций хранилища.
// Все коллекции всегда отсортированы по названию без учета регистра,
// базовая папка всегда стоит первой в списке папок.
type Mirror struct {
	mu        sync.RWMutex
	passwords []vault.Password
	folders   []vault.Folder
	tags      []vault.Tag

	// Признаки того, что папки и теги загружены с сервера хотя бы раз
	foldersLoaded bool
	tagsLoaded    bool
}

// Snapshot - данные для полной замены коллекций при обновлении
type Snapshot struct {
	Passwords      []vault.Password
	Folders        []vault.Folder
	Tags           []vault.Tag
	IncludeFolders bool
	IncludeTags    bool
}

func NewMirror() *Mirror {
	return &Mirror{
		folders: []vault.Folder{vault.BaseFolder()},
	}
}

func compareLabels[T mirrored](a, b T) int {
	return strings.Compare(strings.ToLower(a.SortLabel()), strings.ToLower(b.SortLabel()))
}

func sortByLabel[T mirrored](items []T) {
	slices.SortStableFunc(items, compareLabels[T])
}

func indexOf[T mirrored](items []T, id string) int {
	return slices.IndexFunc(items, func(item T) bool { return item.RecordID() == id })
}

// clonePassword копирует срезы записи, чтобы вызывающий код не менял зеркало
func clonePassword(p vault.Password) vault.Password {
	p.Favicon = slices.Clone(p.Favicon)
	p.Tags = slices.Clone(p.Tags)
	p.CustomFields = slices.Clone(p.CustomFields)
	return p
}

// upsert вставляет запись или заменяет запись с тем же идентификатором
func upsert[T mirrored](items []T, item T) []T {
	if i := indexOf(items, item.RecordID()); i >= 0 {
		items[i] = item
	} else {
		items = append(items, item)
	}
	sortByLabel(items)
	return items
}

func remove[T mirrored](items []T, id string) ([]T, bool) {
	i := indexOf(items, id)
	if i < 0 {
		return items, false
	}
	return slices.Delete(items, i, i+1), true
}

// normalizeFolders сортирует папки и ставит базовую папку на первое место
func normalizeFolders(folders []vault.Folder) []vault.Folder {
	rest := make([]vault.Folder, 0, len(folders))
	for _, f := range folders {
		if !f.IsBase() {
			rest = append(rest, f)
		}
	}
	sortByLabel(rest)
	return append([]vault.Folder{vault.BaseFolder()}, rest...)
}

// ==================== Passwords ====================

func (m *Mirror) ApplyCreatePassword(p vault.Password) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwords = upsert(m.passwords, clonePassword(p))
}

// ApplyUpdatePassword заменяет запись с указанным id. Возвращает true, если
// изменился URL и иконку нужно загрузить заново; иначе иконка переносится.
func (m *Mirror) ApplyUpdatePassword(id string, p vault.Password) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.passwords, id)
	if i < 0 {
		return false, fmt.Errorf("%w: password %s", vault.ErrNotFound, id)
	}

	p = clonePassword(p)
	old := m.passwords[i]
	urlChanged := old.URL != p.URL
	if !urlChanged && p.Favicon == nil {
		p.Favicon = old.Favicon
	}
	if urlChanged {
		p.Favicon = nil
	}

	m.passwords[i] = p
	sortByLabel(m.passwords)
	return urlChanged, nil
}

func (m *Mirror) ApplyDeletePassword(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ok bool
	m.passwords, ok = remove(m.passwords, id)
	return ok
}

// SetFavicon сохраняет иконку, если запись все еще указывает на тот же URL
func (m *Mirror) SetFavicon(id, url string, data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.passwords, id)
	if i < 0 || m.passwords[i].URL != url {
		return false
	}
	m.passwords[i].Favicon = slices.Clone(data)
	return true
}

// ==================== Folders ====================

func (m *Mirror) ApplyCreateFolder(f vault.Folder) error {
	if f.IsBase() {
		return fmt.Errorf("базовая папка не может быть создана")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders = normalizeFolders(upsert(m.folders, f))
	return nil
}

func (m *Mirror) ApplyUpdateFolder(id string, f vault.Folder) error {
	if id == vault.BaseFolderID || f.IsBase() {
		return fmt.Errorf("базовая папка не может быть изменена")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.folders, id)
	if i < 0 {
		return fmt.Errorf("%w: folder %s", vault.ErrNotFound, id)
	}
	m.folders[i] = f
	m.folders = normalizeFolders(m.folders)
	return nil
}

func (m *Mirror) ApplyDeleteFolder(id string) bool {
	if id == vault.BaseFolderID {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var ok bool
	m.folders, ok = remove(m.folders, id)
	return ok
}

// ==================== Tags ====================

func (m *Mirror) ApplyCreateTag(t vault.Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags = upsert(m.tags, t)
}

func (m *Mirror) ApplyUpdateTag(id string, t vault.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := indexOf(m.tags, id)
	if i < 0 {
		return fmt.Errorf("%w: tag %s", vault.ErrNotFound, id)
	}
	m.tags[i] = t
	sortByLabel(m.tags)

	// Записи содержат копии тегов, обновляем их тоже
	for pi := range m.passwords {
		if ti := indexOf(m.passwords[pi].Tags, id); ti >= 0 {
			tags := slices.Clone(m.passwords[pi].Tags)
			tags[ti] = t
			m.passwords[pi].Tags = tags
		}
	}
	return nil
}

func (m *Mirror) ApplyDeleteTag(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ok bool
	m.tags, ok = remove(m.tags, id)

	for pi := range m.passwords {
		if ti := indexOf(m.passwords[pi].Tags, id); ti >= 0 {
			m.passwords[pi].Tags = slices.Delete(slices.Clone(m.passwords[pi].Tags), ti, ti+1)
		}
	}
	return ok
}

// ==================== Refresh ====================

// Replace заменяет записи полностью, папки и теги - только если запрошено.
// Уже загруженные иконки переносятся для записей с тем же id и URL.
func (m *Mirror) Replace(s Snapshot) {
	passwords := make([]vault.Password, len(s.Passwords))
	for i, p := range s.Passwords {
		passwords[i] = clonePassword(p)
	}
	sortByLabel(passwords)

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range passwords {
		if j := indexOf(m.passwords, passwords[i].ID); j >= 0 && m.passwords[j].URL == passwords[i].URL {
			passwords[i].Favicon = m.passwords[j].Favicon
		}
	}
	m.passwords = passwords

	if s.IncludeFolders {
		m.folders = normalizeFolders(s.Folders)
		m.foldersLoaded = true
	}
	if s.IncludeTags {
		tags := slices.Clone(s.Tags)
		sortByLabel(tags)
		m.tags = tags
		m.tagsLoaded = true
	}
}

// Clear очищает все коллекции (при выходе из аккаунта)
func (m *Mirror) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.passwords = nil
	m.folders = []vault.Folder{vault.BaseFolder()}
	m.tags = nil
	m.foldersLoaded = false
	m.tagsLoaded = false
}

// FoldersLoaded сообщает, загружался ли полный список папок
func (m *Mirror) FoldersLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.foldersLoaded
}

// TagsLoaded сообщает, загружался ли полный список тегов
func (m *Mirror) TagsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tagsLoaded
}

// ==================== Reads ====================

// Passwords возвращает копии записей; срезы внутри записей тоже копируются
func (m *Mirror) Passwords() []vault.Password {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]vault.Password, len(m.passwords))
	for i, p := range m.passwords {
		result[i] = clonePassword(p)
	}
	return result
}

func (m *Mirror) Folders() []vault.Folder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.folders)
}

func (m *Mirror) Tags() []vault.Tag {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.tags)
}

func (m *Mirror) Password(id string) (vault.Password, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := indexOf(m.passwords, id); i >= 0 {
		return clonePassword(m.passwords[i]), true
	}
	return vault.Password{}, false
}

func (m *Mirror) Folder(id string) (vault.Folder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := indexOf(m.folders, id); i >= 0 {
		return m.folders[i], true
	}
	return vault.Folder{}, false
}

func (m *Mirror) Tag(id string) (vault.Tag, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := indexOf(m.tags, id); i >= 0 {
		return m.tags[i], true
	}
	return vault.Tag{}, false
}

func (m *Mirror) filterPasswords(keep func(vault.Password) bool) []vault.Password {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []vault.Password
	for _, p := range m.passwords {
		if keep(p) {
			result = append(result, clonePassword(p))
		}
	}
	return result
}

// PasswordsInFolder возвращает записи папки; пустой id означает базовую папку
func (m *Mirror) PasswordsInFolder(folderID string) []vault.Password {
	if folderID == "" {
		folderID = vault.BaseFolderID
	}
	return m.filterPasswords(func(p vault.Password) bool {
		folder := p.Folder
		if folder == "" {
			folder = vault.BaseFolderID
		}
		return folder == folderID
	})
}

func (m *Mirror) PasswordsWithTag(tagID string) []vault.Password {
	return m.filterPasswords(func(p vault.Password) bool { return p.HasTag(tagID) })
}

func (m *Mirror) Favorites() []vault.Password {
	return m.filterPasswords(func(p vault.Password) bool { return p.Favorite })
}

// Search ищет подстроку в названии, логине и URL без учета регистра
func (m *Mirror) Search(query string) []vault.Password {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return m.Passwords()
	}
	return m.filterPasswords(func(p vault.Password) bool {
		return strings.Contains(strings.ToLower(p.Label), q) ||
			strings.Contains(strings.ToLower(p.Username), q) ||
			strings.Contains(strings.ToLower(p.URL), q)
	})
}

// Subfolders возвращает дочерние папки; базовая папка в результат не входит
func (m *Mirror) Subfolders(parentID string) []vault.Folder {
	if parentID == "" {
		parentID = vault.BaseFolderID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []vault.Folder
	for _, f := range m.folders {
		if f.IsBase() {
			continue
		}
		parent := f.Parent
		if parent == "" {
			parent = vault.BaseFolderID
		}
		if parent == parentID {
			result = append(result, f)
		}
	}
	return result
}
