package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/api/dto"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/service"
	apperrors "github.com/pr-poehali-dev/client-support-chat-2/pkg/util"
)

// ChatsHandler manages chat, message and client endpoints.
type ChatsHandler struct {
	service *service.ChatService
}

// NewChatsHandler constructs handler.
func NewChatsHandler(chatService *service.ChatService) *ChatsHandler {
	return &ChatsHandler{service: chatService}
}

// StartChat POST /chats.
func (h *ChatsHandler) StartChat(c *fiber.Ctx) error {
	var req dto.StartChatRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ip := strings.TrimSpace(req.IPAddress)
	if ip == "" {
		ip = c.IP()
	}

	chat, client, err := h.service.StartChat(c.UserContext(), service.StartChatInput{
		IPAddress: ip,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.StartChatResponse{
		ChatID:   chat.ID,
		ClientID: client.ID,
	}})
}

// ListChats GET /chats.
func (h *ChatsHandler) ListChats(c *fiber.Ctx) error {
	overview, err := h.service.ListChats(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.ChatSummary, 0, len(overview))
	for i := range overview {
		items = append(items, chatSummary(&overview[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetChat GET /chats/:id.
func (h *ChatsHandler) GetChat(c *fiber.Ctx) error {
	chat, err := h.service.GetChat(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": chatResponse(chat)})
}

// UpdateStatus PUT /chats/:id/status.
func (h *ChatsHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateChatStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}

	chat, err := h.service.UpdateStatus(c.UserContext(), c.Params("id"), domain.ChatStatus(req.Status), req.AssignedOperator)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": chatResponse(chat)})
}

// ExtendChat POST /chats/:id/extend.
func (h *ChatsHandler) ExtendChat(c *fiber.Ctx) error {
	chat, err := h.service.ExtendChat(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": chatResponse(chat)})
}

// SendMessage POST /chats/:id/messages.
func (h *ChatsHandler) SendMessage(c *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	msg, err := h.service.SendMessage(c.UserContext(), service.SendMessageInput{
		ChatID:     c.Params("id"),
		SenderType: domain.SenderType(req.SenderType),
		SenderName: req.SenderName,
		Text:       req.Message,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// ListMessages GET /chats/:id/messages.
func (h *ChatsHandler) ListMessages(c *fiber.Ctx) error {
	msgs, err := h.service.ListMessages(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, messageResponse(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListClients GET /clients.
func (h *ChatsHandler) ListClients(c *fiber.Ctx) error {
	clients, err := h.service.ListClients(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.ClientResponse, 0, len(clients))
	for i := range clients {
		items = append(items, clientResponse(&clients[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func chatResponse(chat *domain.Chat) dto.ChatResponse {
	return dto.ChatResponse{
		ID:                 chat.ID,
		Status:             string(chat.Status),
		AssignedOperator:   chat.AssignedOperator,
		AssignedAt:         chat.AssignedAt,
		Deadline:           chat.Deadline,
		ExtensionRequested: chat.ExtensionRequested,
		ExtensionDeadline:  chat.ExtensionDeadline,
		CreatedAt:          chat.CreatedAt,
		UpdatedAt:          chat.UpdatedAt,
	}
}

func chatSummary(o *domain.ChatOverview) dto.ChatSummary {
	return dto.ChatSummary{
		ID:               o.ID,
		Status:           string(o.Status),
		AssignedOperator: o.AssignedOperator,
		ClientName:       o.ClientName,
		Email:            o.Email,
		Phone:            o.Phone,
		IPAddress:        o.IPAddress,
		MessageCount:     o.MessageCount,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:         msg.ID,
		SenderType: string(msg.SenderType),
		SenderName: msg.SenderName,
		Text:       msg.Text,
		CreatedAt:  msg.CreatedAt,
	}
}

func clientResponse(client *domain.Client) dto.ClientResponse {
	return dto.ClientResponse{
		ID:        client.ID,
		IPAddress: client.IPAddress,
		Name:      client.Name,
		Email:     client.Email,
		Phone:     client.Phone,
		CreatedAt: client.CreatedAt,
		LastSeen:  client.LastSeen,
	}
}
