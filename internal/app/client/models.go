package client

import (
	"sync"

	"golang.org/x/exp/slices"
)

// Storage - локальное хранилище настроек и кэша иконок
type Storage interface {
	GetPreference(key string) (string, bool, error)
	SetPreference(key, value string) error
	DeletePreferences(keys ...string) error
	ClearPreferences() error

	GetFavicon(host string) ([]byte, bool, error)
	SaveFavicon(host string, data []byte) error
	ClearFavicons() error

	Close() error
}

// MemoryStorage - временное in-memory хранилище
type MemoryStorage struct {
	mu          sync.RWMutex
	preferences map[string]string
	favicons    map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		preferences: make(map[string]string),
		favicons:    make(map[string][]byte),
	}
}

func (m *MemoryStorage) GetPreference(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.preferences[key]
	return value, exists, nil
}

func (m *MemoryStorage) SetPreference(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.preferences[key] = value
	return nil
}

func (m *MemoryStorage) DeletePreferences(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.preferences, key)
	}
	return nil
}

func (m *MemoryStorage) ClearPreferences() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.preferences = make(map[string]string)
	return nil
}

func (m *MemoryStorage) GetFavicon(host string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.favicons[host]
	return slices.Clone(data), exists, nil
}

func (m *MemoryStorage) SaveFavicon(host string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.favicons[host] = slices.Clone(data)
	return nil
}

func (m *MemoryStorage) ClearFavicons() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.favicons = make(map[string][]byte)
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
