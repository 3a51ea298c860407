// Package password хеширует и проверяет пароли пользователей (bcrypt)
// и проверяет минимальные требования к новому паролю.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinLength минимальная длина пароля.
const MinLength = 8

var (
	// ErrTooShort пароль короче MinLength.
	ErrTooShort = errors.New("password must be at least 8 characters")
	// ErrMismatch пароль и подтверждение не совпадают.
	ErrMismatch = errors.New("passwords do not match")
)

// GetHash возвращает bcrypt-хеш пароля.
func GetHash(password string) (string, error) {
	const op = "password.GetHash"
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// CompareHash сравнивает хеш с введённым паролем. Пустой хеш никогда не совпадает.
func CompareHash(hash, candidate string) error {
	const op = "password.CompareHash"
	if hash == "" {
		return fmt.Errorf("%s: %w", op, bcrypt.ErrMismatchedHashAndPassword)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Validate проверяет новый пароль и его подтверждение.
func Validate(password, confirm string) error {
	if len(password) < MinLength {
		return ErrTooShort
	}
	if password != confirm {
		return ErrMismatch
	}
	return nil
}
