package domain

import "time"

// ChatStatus enumerates lifecycle states for client chats.
type ChatStatus string

const (
	ChatStatusWaiting   ChatStatus = "waiting"
	ChatStatusActive    ChatStatus = "active"
	ChatStatusPostponed ChatStatus = "postponed"
	ChatStatusEscalated ChatStatus = "escalated"
	ChatStatusClosed    ChatStatus = "closed"
)

// IsValid reports whether the status is a known lifecycle state.
func (s ChatStatus) IsValid() bool {
	switch s {
	case ChatStatusWaiting, ChatStatusActive, ChatStatusPostponed, ChatStatusEscalated, ChatStatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether the status releases the operator slot for good.
// Terminal chats are excluded from deadline monitoring and assignment.
func (s ChatStatus) IsTerminal() bool {
	switch s {
	case ChatStatusPostponed, ChatStatusEscalated, ChatStatusClosed:
		return true
	}
	return false
}

// Chat is the aggregate the scheduler owns. The scheduler is the sole
// writer of Status, AssignedOperator, AssignedAt, Deadline and the
// extension fields; everything else only reads them.
type Chat struct {
	ID                 string
	ClientID           string
	Status             ChatStatus
	AssignedOperator   *string
	AssignedAt         *time.Time
	Deadline           *time.Time
	ExtensionRequested bool
	ExtensionDeadline  *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ChatOverview is the dashboard projection joining client data and the
// message count, mirroring the operator chat list.
type ChatOverview struct {
	ID               string
	Status           ChatStatus
	AssignedOperator *string
	ClientName       *string
	Email            *string
	Phone            *string
	IPAddress        string
	MessageCount     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
