package events

import (
	"time"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventChatCreated          EventType = "chat_created"
	EventChatAssigned         EventType = "chat_assigned"
	EventChatReleased         EventType = "chat_released"
	EventChatStatusChanged    EventType = "chat_status_changed"
	EventChatGraceGranted     EventType = "chat_grace_granted"
	EventChatDeadlineExtended EventType = "chat_deadline_extended"
	EventChatMessageAdded     EventType = "chat_message_added"
)

// Event represents a domain event emitted by the scheduler and services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ChatID    string      `json:"chat_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ChatCreatedPayload payload.
type ChatCreatedPayload struct {
	ClientID string `json:"client_id"`
}

// ChatAssignedPayload payload.
type ChatAssignedPayload struct {
	Operator string    `json:"operator"`
	Deadline time.Time `json:"deadline"`
}

// ChatReleasedPayload payload.
type ChatReleasedPayload struct {
	Operator string `json:"operator,omitempty"`
	Reason   string `json:"reason"`
}

// ChatStatusChangedPayload payload.
type ChatStatusChangedPayload struct {
	OldStatus domain.ChatStatus `json:"old_status"`
	NewStatus domain.ChatStatus `json:"new_status"`
}

// ChatGraceGrantedPayload payload.
type ChatGraceGrantedPayload struct {
	ExtensionDeadline time.Time `json:"extension_deadline"`
}

// ChatDeadlineExtendedPayload payload.
type ChatDeadlineExtendedPayload struct {
	Deadline time.Time `json:"deadline"`
}

// ChatMessageAddedPayload payload.
type ChatMessageAddedPayload struct {
	MessageID  string            `json:"message_id"`
	SenderType domain.SenderType `json:"sender_type"`
	SenderName *string           `json:"sender_name,omitempty"`
}

// Release reasons recorded on ChatReleasedPayload.
const (
	ReleaseReasonDeadlineExpired = "deadline_expired"
	ReleaseReasonOperatorOffline = "operator_offline"
	ReleaseReasonManual          = "manual"
)
