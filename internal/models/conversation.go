package models

import "time"

// ConversationStatus статус переписки; closed терминален.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation переписка хоста с поддержкой.
type Conversation struct {
	ID            string             `json:"id"`
	HostID        string             `json:"host_id"`
	CompanyName   string             `json:"company_name,omitempty"`
	Subject       string             `json:"subject"`
	Status        ConversationStatus `json:"status"`
	LastMessageAt time.Time          `json:"last_message_at"`
	CreatedAt     time.Time          `json:"created_at"`
	UnreadCount   int                `json:"unread_count"`
}

// Message сообщение в переписке.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	IsFromHost     bool      `json:"is_from_host"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}
