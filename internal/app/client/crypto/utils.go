package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// Параметры Argon2id для хэша PIN-кода
	pinArgonTime    = 1
	pinArgonMemory  = 64 * 1024
	pinArgonThreads = 4
	pinKeyLen       = 32
	pinSaltLen      = 16
)

var ErrInvalidHash = errors.New("invalid hash format")

// ClearMemory затирает чувствительные данные из памяти
func ClearMemory(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// GenerateRandomBytes генерирует криптографически безопасные случайные байты
func GenerateRandomBytes(size int) ([]byte, error) {
	bytes := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return bytes, nil
}

// HashPIN создает хэш PIN-кода для хранения в настройках
func HashPIN(pin string) (string, error) {
	salt, err := GenerateRandomBytes(pinSaltLen)
	if err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(pin), salt, pinArgonTime, pinArgonMemory, pinArgonThreads, pinKeyLen)

	// Сохраняем соль и хэш вместе
	result := make([]byte, len(salt)+len(hash))
	copy(result, salt)
	copy(result[len(salt):], hash)

	return base64.StdEncoding.EncodeToString(result), nil
}

// VerifyPIN проверяет PIN-код против сохраненного хэша.
// Сравнение выполняется за постоянное время.
func VerifyPIN(pin, stored string) (bool, error) {
	decoded, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return false, ErrInvalidHash
	}

	if len(decoded) != pinSaltLen+pinKeyLen {
		return false, ErrInvalidHash
	}

	salt := decoded[:pinSaltLen]
	storedHash := decoded[pinSaltLen:]

	computed := argon2.IDKey([]byte(pin), salt, pinArgonTime, pinArgonMemory, pinArgonThreads, pinKeyLen)
	defer ClearMemory(computed)

	return subtle.ConstantTimeCompare(computed, storedHash) == 1, nil
}
