package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/events"
)

// NotificationService logs scheduler events for operator dashboards and
// support tooling to tail.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventChatCreated, n.handleEvent("ChatCreated"))
	n.dispatcher.Subscribe(events.EventChatAssigned, n.handleEvent("ChatAssigned"))
	n.dispatcher.Subscribe(events.EventChatReleased, n.handleEvent("ChatReleased"))
	n.dispatcher.Subscribe(events.EventChatStatusChanged, n.handleEvent("ChatStatusChanged"))
	n.dispatcher.Subscribe(events.EventChatGraceGranted, n.handleEvent("ChatGraceGranted"))
	n.dispatcher.Subscribe(events.EventChatDeadlineExtended, n.handleEvent("ChatDeadlineExtended"))
}

func (n *NotificationService) handleEvent(name string) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		n.logger.Info(name,
			zap.String("chat_id", event.ChatID),
			zap.Any("payload", event.Payload))
		return nil
	}
}
