package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	sealKeyLen         = 32
	sealKeyPermissions = 0600
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// SecretBox шифрует секреты, которые сохраняются на диске (пароль приложения).
// Ключ создается при первом использовании и хранится рядом с настройками.
type SecretBox struct {
	keyPath string
	key     []byte
	mu      sync.Mutex
}

// NewSecretBox создает шифровальщик с ключом по указанному пути
func NewSecretBox(keyPath string) (*SecretBox, error) {
	absPath, err := filepath.Abs(keyPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка определения пути: %w", err)
	}
	return &SecretBox{keyPath: absPath}, nil
}

// NewSecretBoxWithKey создает шифровальщик с заранее известным ключом
func NewSecretBoxWithKey(key []byte) (*SecretBox, error) {
	if len(key) != sealKeyLen {
		return nil, fmt.Errorf("неверная длина ключа: %d", len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &SecretBox{key: k}, nil
}

func (b *SecretBox) loadKey() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.key != nil {
		return b.key, nil
	}

	data, err := os.ReadFile(b.keyPath)
	switch {
	case err == nil:
		if len(data) != sealKeyLen {
			return nil, fmt.Errorf("файл ключа поврежден: %s", b.keyPath)
		}
		b.key = data
		return b.key, nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("ошибка чтения ключа: %w", err)
	}

	key, err := GenerateRandomBytes(sealKeyLen)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(b.keyPath), 0700); err != nil {
		return nil, fmt.Errorf("ошибка создания директории ключа: %w", err)
	}
	if err := os.WriteFile(b.keyPath, key, sealKeyPermissions); err != nil {
		return nil, fmt.Errorf("ошибка сохранения ключа: %w", err)
	}
	b.key = key
	return b.key, nil
}

// Seal шифрует строку AES-256-GCM и возвращает base64
func (b *SecretBox) Seal(plaintext string) (string, error) {
	key, err := b.loadKey()
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce, err := GenerateRandomBytes(gcm.NonceSize())
	if err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open расшифровывает строку, созданную Seal
func (b *SecretBox) Open(sealed string) (string, error) {
	key, err := b.loadKey()
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("ошибка декодирования: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("ошибка расшифровки: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания шифра: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}
	return gcm, nil
}
