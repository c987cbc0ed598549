package scheduler

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/events"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/repository"
	apperrors "github.com/pr-poehali-dev/client-support-chat-2/pkg/util"
)

// Coordinator releases operator slots and hands orphaned chats back to the
// waiting queue, then re-invokes the assignment engine.
type Coordinator struct {
	chats      repository.ChatRepository
	engine     *Engine
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// CoordinatorDependencies bundles coordinator collaborators.
type CoordinatorDependencies struct {
	ChatRepo   repository.ChatRepository
	Engine     *Engine
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewCoordinator creates the reassignment coordinator.
func NewCoordinator(deps CoordinatorDependencies) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		chats:      deps.ChatRepo,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Requeue releases the chat back to waiting, freeing its operator slot, and
// immediately retries assignment. Releasing an already-unassigned chat is a
// no-op. The chat keeps its original created_at, so it re-enters the queue
// ahead of newer chats.
func (c *Coordinator) Requeue(ctx context.Context, chatID, reason string) error {
	chat, err := c.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("chat", map[string]any{"chat_id": chatID})
		}
		return apperrors.MapError(err)
	}

	released, err := c.chats.Requeue(ctx, chatID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !released {
		return nil
	}

	operator := ""
	if chat.AssignedOperator != nil {
		operator = *chat.AssignedOperator
	}
	c.logger.Info("chat released",
		zap.String("chat_id", chatID),
		zap.String("operator", operator),
		zap.String("reason", reason))
	publish(ctx, c.dispatcher, events.Event{
		Type:   events.EventChatReleased,
		ChatID: chatID,
		Payload: events.ChatReleasedPayload{
			Operator: operator,
			Reason:   reason,
		},
	})

	return c.engine.Dispatch(ctx, "")
}

// Finish moves the chat to a terminal status, freeing the operator slot in
// the same step, then retries assignment for the freed capacity. Closed
// chats are never resurrected.
func (c *Coordinator) Finish(ctx context.Context, chatID string, status domain.ChatStatus) error {
	if !status.IsTerminal() {
		return apperrors.NewValidationError("status is not terminal", map[string]any{"status": status})
	}

	chat, err := c.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("chat", map[string]any{"chat_id": chatID})
		}
		return apperrors.MapError(err)
	}
	if chat.Status == status {
		return nil
	}

	done, err := c.chats.Finish(ctx, chatID, status)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !done {
		return apperrors.NewConflict("chat already closed", map[string]any{"chat_id": chatID})
	}

	publish(ctx, c.dispatcher, events.Event{
		Type:   events.EventChatStatusChanged,
		ChatID: chatID,
		Payload: events.ChatStatusChangedPayload{
			OldStatus: chat.Status,
			NewStatus: status,
		},
	})
	if chat.AssignedOperator != nil {
		publish(ctx, c.dispatcher, events.Event{
			Type:   events.EventChatReleased,
			ChatID: chatID,
			Payload: events.ChatReleasedPayload{
				Operator: *chat.AssignedOperator,
				Reason:   events.ReleaseReasonManual,
			},
		})
	}

	return c.engine.Dispatch(ctx, "")
}

// ReleaseOperator requeues every chat held by the operator, oldest first,
// then retries assignment once for the whole batch.
func (c *Coordinator) ReleaseOperator(ctx context.Context, operator string) error {
	assigned, err := c.chats.ListAssignedTo(ctx, operator)
	if err != nil {
		return apperrors.MapError(err)
	}

	for _, chat := range assigned {
		released, err := c.chats.Requeue(ctx, chat.ID)
		if err != nil {
			return apperrors.MapError(err)
		}
		if !released {
			continue
		}
		publish(ctx, c.dispatcher, events.Event{
			Type:   events.EventChatReleased,
			ChatID: chat.ID,
			Payload: events.ChatReleasedPayload{
				Operator: operator,
				Reason:   events.ReleaseReasonOperatorOffline,
			},
		})
	}
	if len(assigned) > 0 {
		c.logger.Info("operator chats released",
			zap.String("operator", operator),
			zap.Int("count", len(assigned)))
	}

	return c.engine.Dispatch(ctx, "")
}
