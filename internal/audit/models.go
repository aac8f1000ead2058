package audit

import "time"

// Event is an immutable, append-only audit record of operator and admin
// activity.
//
// Invariants:
// - Events are never updated or deleted.
// - Capture is best-effort; do not block call handling on audit failures.

type Event struct {
	ID string `json:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type"`

	// ChatID is the operator chat that issued the command, if any.
	ChatID int64 `json:"chat_id,omitempty"`

	// Actor identifies the admin-surface caller, if any.
	Actor string `json:"actor,omitempty"`

	// CallID is the affected call, if any.
	CallID string `json:"call_id,omitempty"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeOperatorCommand EventType = "operator_command"
	EventTypeAdminAction     EventType = "admin_action"
)
