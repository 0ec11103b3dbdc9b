package domain

import "time"

const (
	OutboxKindEmailVerification = "email_verification"
	OutboxKindPasswordReset     = "password_reset"

	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusDead    = "dead"
)

type OutboxMessage struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	AccountID     string     `gorm:"size:36;not null;index" json:"account_id"`
	Kind          string     `gorm:"size:32;not null" json:"kind"`
	Recipient     string     `gorm:"size:255;not null" json:"recipient"`
	Subject       string     `gorm:"size:255;not null" json:"subject"`
	HTMLBody      string     `gorm:"type:text" json:"-"`
	Status        string     `gorm:"size:16;not null;default:pending;index:idx_outbox_due,priority:1" json:"status"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt time.Time  `gorm:"not null;index:idx_outbox_due,priority:2" json:"next_attempt_at"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	LastError     string     `gorm:"size:1024" json:"last_error,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "notification_outbox"
}

type OutboxStats struct {
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Dead    int64 `json:"dead"`
}
