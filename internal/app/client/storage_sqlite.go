package client

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}

	storage, err := NewSQLiteStorageFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return storage, nil
}

// NewSQLiteStorageFromDB использует уже открытое соединение и создает таблицы
func NewSQLiteStorageFromDB(db *sql.DB) (*SQLiteStorage, error) {
	storage := &SQLiteStorage{db: db}

	if err := storage.initTables(); err != nil {
		return nil, fmt.Errorf("ошибка инициализации таблиц: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS favicons (
			host TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			fetched_at DATETIME NOT NULL
		);
	`)

	return err
}

func (s *SQLiteStorage) GetPreference(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ошибка чтения настройки %s: %w", key, err)
	}

	return value, true, nil
}

func (s *SQLiteStorage) SetPreference(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("ошибка сохранения настройки %s: %w", key, err)
	}

	return nil
}

func (s *SQLiteStorage) DeletePreferences(keys ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.Exec("DELETE FROM preferences WHERE key = ?", key); err != nil {
			return fmt.Errorf("ошибка удаления настройки %s: %w", key, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) ClearPreferences() error {
	if _, err := s.db.Exec("DELETE FROM preferences"); err != nil {
		return fmt.Errorf("ошибка сброса настроек: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) GetFavicon(host string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM favicons WHERE host = ?", host).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения иконки %s: %w", host, err)
	}

	return data, true, nil
}

func (s *SQLiteStorage) SaveFavicon(host string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO favicons (host, data, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at
	`, host, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка сохранения иконки %s: %w", host, err)
	}

	return nil
}

func (s *SQLiteStorage) ClearFavicons() error {
	if _, err := s.db.Exec("DELETE FROM favicons"); err != nil {
		return fmt.Errorf("ошибка очистки иконок: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
