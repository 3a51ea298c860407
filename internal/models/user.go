// Package models содержит доменные сущности платформы: пользователей, профили хостов,
// договоры, журнал заявок, уведомления, права доступа и переписку.
package models

import "time"

// User представляет учётную запись платформы (хост или сотрудник).
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	IsStaff      bool       `json:"is_staff"`
	IsSuperuser  bool       `json:"is_superuser"`
	IsHost       bool       `json:"is_host"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// HasUsablePassword сообщает, задан ли пароль пользователя.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}
