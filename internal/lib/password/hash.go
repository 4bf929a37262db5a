// Package password реализует функции для безопасного хеширования и проверки паролей.
//
// Hash создаёт scrypt-хеш пароля со случайной солью для безопасного хранения.
// Verify пересчитывает хеш и сравнивает его с сохранённым за постоянное время.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/scrypt"

	"github.com/magabrotheeeer/render-ledger/internal/models"
)

// MinLength минимальная длина пароля. Проверяется вызывающим кодом до хеширования.
const MinLength = 8

const (
	saltSize = 16
	keyLen   = 64
	costN    = 1 << 15
	costR    = 8
	costP    = 1
)

// Dummy учётные данные, которым не соответствует ни один пароль. Проверка
// против них стоит столько же, сколько против настоящих.
var Dummy = models.Credential{
	Salt: base64.StdEncoding.EncodeToString(make([]byte, saltSize)),
	Hash: base64.StdEncoding.EncodeToString(make([]byte, keyLen)),
}

// Hash принимает пароль пользователя и возвращает соль и scrypt‑хэш.
//
// Для каждого пароля генерируется новая соль.
func Hash(password string) (models.Credential, error) {
	const op = "password.Hash"

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return models.Credential{}, fmt.Errorf("%s: %w", op, err)
	}
	key, err := derive(password, salt)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%s: %w", op, err)
	}
	return models.Credential{
		Salt: base64.StdEncoding.EncodeToString(salt),
		Hash: base64.StdEncoding.EncodeToString(key),
	}, nil
}

// Verify сравнивает пароль с сохранённым хешем.
//
// Любая внутренняя ошибка (битая соль, битый хеш) означает false.
func Verify(password string, cred models.Credential) bool {
	salt, err := base64.StdEncoding.DecodeString(cred.Salt)
	if err != nil || len(salt) == 0 {
		return false
	}
	stored, err := base64.StdEncoding.DecodeString(cred.Hash)
	if err != nil || len(stored) == 0 {
		return false
	}
	key, err := derive(password, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, stored) == 1
}

func derive(password string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, costN, costR, costP, keyLen)
}
