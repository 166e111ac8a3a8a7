package notification

import "time"

// Kind classifies a notification.
type Kind string

const (
	KindDueReminder Kind = "due_reminder"
	KindOverdue     Kind = "overdue"
	KindDelinquent  Kind = "delinquent"
	KindSyncFailed  Kind = "sync_failed"
	KindSystem      Kind = "system"
)

// Notification is an in-app message for one user. Reference identifies the
// subject (for example an installment id) and deduplicates dispatches.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      Kind       `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Reference string     `json:"reference,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
