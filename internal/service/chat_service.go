package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/events"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/repository"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/scheduler"
	apperrors "github.com/pr-poehali-dev/client-support-chat-2/pkg/util"
)

// ChatService coordinates chat workflows around the scheduler.
type ChatService struct {
	chats       repository.ChatRepository
	clients     repository.ClientRepository
	messages    repository.MessageRepository
	engine      *scheduler.Engine
	coordinator *scheduler.Coordinator
	monitor     *scheduler.Monitor
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// ChatDependencies bundles chat service collaborators.
type ChatDependencies struct {
	ChatRepo    repository.ChatRepository
	ClientRepo  repository.ClientRepository
	MessageRepo repository.MessageRepository
	Engine      *scheduler.Engine
	Coordinator *scheduler.Coordinator
	Monitor     *scheduler.Monitor
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// StartChatInput describes the client opening a chat.
type StartChatInput struct {
	IPAddress string
	Name      *string
	Email     *string
	Phone     *string
}

// SendMessageInput describes an appended chat message.
type SendMessageInput struct {
	ChatID     string
	SenderType domain.SenderType
	SenderName *string
	Text       string
}

// NewChatService constructs the service.
func NewChatService(deps ChatDependencies) *ChatService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		chats:       deps.ChatRepo,
		clients:     deps.ClientRepo,
		messages:    deps.MessageRepo,
		engine:      deps.Engine,
		coordinator: deps.Coordinator,
		monitor:     deps.Monitor,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
	}
}

// StartChat ensures one non-terminal chat exists for the client, creating a
// waiting chat and attempting immediate assignment when there is none.
// Idempotent per client: repeat calls return the existing open chat.
func (s *ChatService) StartChat(ctx context.Context, input StartChatInput) (*domain.Chat, *domain.Client, error) {
	if strings.TrimSpace(input.IPAddress) == "" {
		return nil, nil, apperrors.NewValidationError("ipAddress required", nil)
	}

	client := &domain.Client{
		IPAddress: input.IPAddress,
		Name:      input.Name,
		Email:     input.Email,
		Phone:     input.Phone,
	}
	if err := s.clients.UpsertByIP(ctx, client); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	existing, err := s.chats.FindOpenByClient(ctx, client.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if existing != nil {
		return existing, client, nil
	}

	chat := &domain.Chat{ClientID: client.ID}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	s.logger.Info("chat created",
		zap.String("chat_id", chat.ID),
		zap.String("client_id", client.ID))
	s.publishEvent(ctx, events.Event{
		Type:    events.EventChatCreated,
		ChatID:  chat.ID,
		Payload: events.ChatCreatedPayload{ClientID: client.ID},
	})

	if err := s.engine.Dispatch(ctx, ""); err != nil {
		return nil, nil, err
	}

	chat, err = s.chats.GetByID(ctx, chat.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return chat, client, nil
}

// SendMessage appends to the chat log and touches the chat. No scheduler
// interaction beyond the opportunistic sweep at the transport layer.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*domain.Message, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, apperrors.NewValidationError("message required", nil)
	}
	if !input.SenderType.IsValid() {
		return nil, apperrors.NewValidationError("unknown senderType", map[string]any{"sender_type": input.SenderType})
	}

	if _, err := s.getChat(ctx, input.ChatID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ChatID:     input.ChatID,
		SenderType: input.SenderType,
		SenderName: input.SenderName,
		Text:       strings.TrimSpace(input.Text),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.chats.Touch(ctx, input.ChatID); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:   events.EventChatMessageAdded,
		ChatID: input.ChatID,
		Payload: events.ChatMessageAddedPayload{
			MessageID:  msg.ID,
			SenderType: msg.SenderType,
			SenderName: msg.SenderName,
		},
	})
	return msg, nil
}

// UpdateStatus drives a chat through the scheduler: activation goes through
// the atomic claim with the capacity check, waiting through the release
// path, terminal statuses through the slot-freeing finish.
func (s *ChatService) UpdateStatus(ctx context.Context, chatID string, status domain.ChatStatus, operator string) (*domain.Chat, error) {
	if !status.IsValid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}

	switch {
	case status == domain.ChatStatusActive:
		if operator == "" {
			return nil, apperrors.NewValidationError("assignedOperator required for active status", nil)
		}
		if _, err := s.getChat(ctx, chatID); err != nil {
			return nil, err
		}
		if err := s.engine.AssignTo(ctx, chatID, operator); err != nil {
			return nil, err
		}
	case status == domain.ChatStatusWaiting:
		if err := s.coordinator.Requeue(ctx, chatID, events.ReleaseReasonManual); err != nil {
			return nil, err
		}
	default:
		if err := s.coordinator.Finish(ctx, chatID, status); err != nil {
			return nil, err
		}
	}

	return s.getChat(ctx, chatID)
}

// ExtendChat resets the response deadline for an active chat.
func (s *ChatService) ExtendChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	return s.monitor.Extend(ctx, chatID)
}

// GetChat fetches a chat by id.
func (s *ChatService) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	return s.getChat(ctx, chatID)
}

// ListChats returns the dashboard projection of every chat.
func (s *ChatService) ListChats(ctx context.Context) ([]domain.ChatOverview, error) {
	overview, err := s.chats.ListOverview(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return overview, nil
}

// ListMessages returns the chat log in order.
func (s *ChatService) ListMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	if _, err := s.getChat(ctx, chatID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return msgs, nil
}

// ListClients returns known clients, most recently seen first.
func (s *ChatService) ListClients(ctx context.Context) ([]domain.Client, error) {
	clients, err := s.clients.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return clients, nil
}

func (s *ChatService) getChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("chat", map[string]any{"chat_id": chatID})
		}
		return nil, apperrors.MapError(err)
	}
	return chat, nil
}

func (s *ChatService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, fillEvent(event))
}

func fillEvent(event events.Event) events.Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event
}
