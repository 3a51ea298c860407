// Package storage объявляет ошибки, общие для всех реализаций хранилища.
package storage

import "errors"

var (
	// ErrNotFound запись не найдена.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists нарушено ограничение уникальности.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrStaleState условное обновление не применилось: состояние записи уже изменилось.
	ErrStaleState = errors.New("record state changed concurrently")
)
