package models

import "time"

// LogAction тип записи журнала заявки.
type LogAction string

const (
	ActionApproved              LogAction = "approved"
	ActionRejected              LogAction = "rejected"
	ActionLinkResent            LogAction = "link_resent"
	ActionPasswordSet           LogAction = "password_set"
	ActionNoteAdded             LogAction = "note_added"
	ActionStatusChanged         LogAction = "status_changed"
	ActionContractSigned        LogAction = "contract_signed"
	ActionCancellationRequested LogAction = "cancellation_requested"
	ActionSubscriptionPaid      LogAction = "subscription_paid"
	ActionEmailSent             LogAction = "email_sent"
	ActionEmailQueued           LogAction = "email_queued"
	ActionProfileUpdated        LogAction = "profile_updated"
	ActionServiceEnded          LogAction = "service_ended"
	ActionAccessExpired         LogAction = "access_expired"
)

// ApplicationLog неизменяемая запись журнала по профилю хоста.
type ApplicationLog struct {
	ID        string         `json:"id"`
	HostID    string         `json:"host_id"`
	Action    LogAction      `json:"action"`
	ActorID   *string        `json:"actor_id,omitempty"`
	Note      string         `json:"note"`
	IPAddress string         `json:"ip_address,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}
