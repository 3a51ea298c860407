package models

import "time"

// NotificationCategory категория уведомления.
type NotificationCategory string

const (
	CategorySubscription NotificationCategory = "subscription"
	CategoryPayment      NotificationCategory = "payment"
	CategorySystem       NotificationCategory = "system"
	CategoryInfo         NotificationCategory = "info"
)

// Notification уведомление пользователю; изменяется только признак прочтения.
type Notification struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Category  NotificationCategory `json:"category"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	ActionURL string               `json:"action_url"`
	IsRead    bool                 `json:"is_read"`
	CreatedAt time.Time            `json:"created_at"`
}
