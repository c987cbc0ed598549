package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/events"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/repository"
	apperrors "github.com/pr-poehali-dev/client-support-chat-2/pkg/util"
)

// claimRetries bounds re-selection after losing a claim race. The state is
// shifting under contention, so giving up after a few rounds is safe: the
// winners are assigning the same queue.
const claimRetries = 5

// AssignOutcome classifies the result of an assignment attempt. None of
// these are errors; an empty queue and saturated operators are the expected
// backpressure states.
type AssignOutcome string

const (
	OutcomeAssigned           AssignOutcome = "assigned"
	OutcomeNoEligibleOperator AssignOutcome = "no_eligible_operator"
	OutcomeNoWaitingChat      AssignOutcome = "no_waiting_chat"
)

// AssignResult describes a single assignment attempt.
type AssignResult struct {
	Outcome  AssignOutcome
	ChatID   string
	Operator string
}

// Engine matches waiting chats to eligible operators respecting the
// per-operator capacity cap.
type Engine struct {
	chats            repository.ChatRepository
	operators        repository.OperatorRepository
	capacity         int
	responseDeadline time.Duration
	dispatcher       events.Dispatcher
	logger           *zap.Logger
}

// EngineDependencies bundles engine collaborators.
type EngineDependencies struct {
	ChatRepo         repository.ChatRepository
	OperatorRepo     repository.OperatorRepository
	Capacity         int
	ResponseDeadline time.Duration
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// NewEngine creates the assignment engine.
func NewEngine(deps EngineDependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		chats:            deps.ChatRepo,
		operators:        deps.OperatorRepo,
		capacity:         deps.Capacity,
		responseDeadline: deps.ResponseDeadline,
		dispatcher:       deps.Dispatcher,
		logger:           logger,
	}
}

// Capacity returns the per-operator cap.
func (e *Engine) Capacity() int {
	return e.capacity
}

// AssignNext performs a single pick: the least-loaded eligible operator
// (preferred operator first when still eligible) and the oldest waiting
// chat, claimed together in one conditional step. Lost races are retried
// against the then-current state.
func (e *Engine) AssignNext(ctx context.Context, preferred string) (AssignResult, error) {
	for attempt := 0; attempt < claimRetries; attempt++ {
		eligible, err := e.operators.ListEligible(ctx, e.capacity)
		if err != nil {
			return AssignResult{}, apperrors.MapError(err)
		}
		if len(eligible) == 0 {
			return AssignResult{Outcome: OutcomeNoEligibleOperator}, nil
		}
		operator := eligible[0]
		if preferred != "" {
			for _, candidate := range eligible {
				if candidate.Name == preferred {
					operator = candidate
					break
				}
			}
		}

		chat, err := e.chats.OldestWaiting(ctx)
		if err != nil {
			return AssignResult{}, apperrors.MapError(err)
		}
		if chat == nil {
			return AssignResult{Outcome: OutcomeNoWaitingChat}, nil
		}

		now := time.Now()
		deadline := now.Add(e.responseDeadline)
		result, err := e.chats.Claim(ctx, chat.ID, operator.Name, now, deadline, e.capacity)
		if err != nil {
			return AssignResult{}, apperrors.MapError(err)
		}
		if result.Claimed {
			e.logger.Info("chat assigned",
				zap.String("chat_id", chat.ID),
				zap.String("operator", operator.Name),
				zap.Time("deadline", deadline))
			publish(ctx, e.dispatcher, events.Event{
				Type:   events.EventChatAssigned,
				ChatID: chat.ID,
				Payload: events.ChatAssignedPayload{
					Operator: operator.Name,
					Deadline: deadline,
				},
			})
			return AssignResult{Outcome: OutcomeAssigned, ChatID: chat.ID, Operator: operator.Name}, nil
		}
		// another scheduler won the claim or filled the operator; re-select
	}
	return AssignResult{Outcome: OutcomeNoWaitingChat}, nil
}

// Dispatch runs assignment picks until nothing further can be matched. One
// cycle saturates free capacity: an operator coming online with an empty
// slate picks up the cap's worth of oldest waiting chats.
func (e *Engine) Dispatch(ctx context.Context, preferred string) error {
	for {
		result, err := e.AssignNext(ctx, preferred)
		if err != nil {
			return err
		}
		if result.Outcome != OutcomeAssigned {
			return nil
		}
	}
}

// AssignTo claims a specific chat for a specific operator, used when a
// supervisor routes a chat by hand. The capacity cap is enforced in the
// same conditional step as the claim.
func (e *Engine) AssignTo(ctx context.Context, chatID, operator string) error {
	op, err := e.operators.GetByName(ctx, operator)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("operator", map[string]any{"operator": operator})
		}
		return apperrors.MapError(err)
	}
	if op.Status != domain.OperatorStatusOnline {
		return apperrors.NewConflict("operator is not online", map[string]any{"operator": operator})
	}

	now := time.Now()
	deadline := now.Add(e.responseDeadline)
	result, err := e.chats.Claim(ctx, chatID, operator, now, deadline, e.capacity)
	if err != nil {
		return apperrors.MapError(err)
	}
	if result.AtCapacity {
		return apperrors.NewCapacityExceeded(operator, e.capacity)
	}
	if !result.Claimed {
		return apperrors.NewConflict("chat is not waiting", map[string]any{"chat_id": chatID})
	}
	publish(ctx, e.dispatcher, events.Event{
		Type:   events.EventChatAssigned,
		ChatID: chatID,
		Payload: events.ChatAssignedPayload{
			Operator: operator,
			Deadline: deadline,
		},
	})
	return nil
}

func publish(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}
