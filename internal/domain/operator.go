package domain

import "time"

// OperatorStatus enumerates operator availability.
type OperatorStatus string

const (
	OperatorStatusOnline  OperatorStatus = "online"
	OperatorStatusOffline OperatorStatus = "offline"
)

// IsValid reports whether the status is a known availability state.
func (s OperatorStatus) IsValid() bool {
	switch s {
	case OperatorStatusOnline, OperatorStatusOffline:
		return true
	}
	return false
}

// Operator is a support employee keyed by name. ActiveChats is always
// derived from the active-chat predicate, never stored.
type Operator struct {
	Name        string
	Status      OperatorStatus
	ActiveChats int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
