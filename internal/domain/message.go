package domain

import "time"

// SenderType distinguishes message authors.
type SenderType string

const (
	SenderTypeClient   SenderType = "client"
	SenderTypeOperator SenderType = "operator"
)

// IsValid reports whether the sender type is known.
func (s SenderType) IsValid() bool {
	return s == SenderTypeClient || s == SenderTypeOperator
}

// Message is an append-only chat log entry.
type Message struct {
	ID         string
	ChatID     string
	SenderType SenderType
	SenderName *string
	Text       string
	CreatedAt  time.Time
}
