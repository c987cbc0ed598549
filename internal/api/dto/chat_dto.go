package dto

import "time"

// StartChatRequest opens (or resumes) a chat for a client.
type StartChatRequest struct {
	IPAddress string  `json:"ipAddress"`
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
}

// StartChatResponse identifies the open chat.
type StartChatResponse struct {
	ChatID   string `json:"chatId"`
	ClientID string `json:"clientId"`
}

// SendMessageRequest appends a message to a chat.
type SendMessageRequest struct {
	SenderType string  `json:"senderType"`
	SenderName *string `json:"senderName"`
	Message    string  `json:"message"`
}

// UpdateChatStatusRequest drives a chat status transition.
type UpdateChatStatusRequest struct {
	Status           string `json:"status"`
	AssignedOperator string `json:"assignedOperator"`
}

// ChatResponse is the full scheduler view of a chat.
type ChatResponse struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	AssignedOperator   *string    `json:"assignedOperator"`
	AssignedAt         *time.Time `json:"assignedAt,omitempty"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	ExtensionRequested bool       `json:"extensionRequested"`
	ExtensionDeadline  *time.Time `json:"extensionDeadline,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// ChatSummary is the dashboard listing entry.
type ChatSummary struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	AssignedOperator *string   `json:"assignedOperator"`
	ClientName       *string   `json:"clientName"`
	Email            *string   `json:"email"`
	Phone            *string   `json:"phone"`
	IPAddress        string    `json:"ipAddress"`
	MessageCount     int       `json:"messageCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// MessageResponse is a chat log entry.
type MessageResponse struct {
	ID         string    `json:"id"`
	SenderType string    `json:"senderType"`
	SenderName *string   `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ClientResponse is a known chat client.
type ClientResponse struct {
	ID        string    `json:"id"`
	IPAddress string    `json:"ipAddress"`
	Name      *string   `json:"name"`
	Email     *string   `json:"email"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
}
