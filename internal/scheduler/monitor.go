package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/events"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/observability"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/repository"
	apperrors "github.com/pr-poehali-dev/client-support-chat-2/pkg/util"
)

// Monitor is the polling deadline state machine. Each sweep moves lapsed
// active chats FRESH -> EXPIRED_GRACE (one-time extension window) and
// EXPIRED_GRACE -> released. Sweeps are idempotent and tolerate arbitrary
// gaps between invocations.
type Monitor struct {
	chats            repository.ChatRepository
	coordinator      *Coordinator
	responseDeadline time.Duration
	grace            time.Duration
	sweepInterval    time.Duration
	dispatcher       events.Dispatcher
	metrics          *observability.Metrics
	logger           *zap.Logger

	lastSweep atomic.Int64
}

// MonitorDependencies bundles monitor collaborators.
type MonitorDependencies struct {
	ChatRepo         repository.ChatRepository
	Coordinator      *Coordinator
	ResponseDeadline time.Duration
	ExtensionGrace   time.Duration
	SweepInterval    time.Duration
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// NewMonitor creates the deadline monitor.
func NewMonitor(deps MonitorDependencies) *Monitor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		chats:            deps.ChatRepo,
		coordinator:      deps.Coordinator,
		responseDeadline: deps.ResponseDeadline,
		grace:            deps.ExtensionGrace,
		sweepInterval:    deps.SweepInterval,
		dispatcher:       deps.Dispatcher,
		metrics:          deps.Metrics,
		logger:           logger,
	}
}

// Sweep evaluates every active chat against now. Step one grants the grace
// window to chats whose deadline lapsed without a prior extension; step two
// releases chats whose grace window also lapsed.
func (m *Monitor) Sweep(ctx context.Context) error {
	now := time.Now()

	granted, err := m.chats.GrantGrace(ctx, now, now.Add(m.grace))
	if err != nil {
		return apperrors.MapError(err)
	}
	for _, chatID := range granted {
		m.logger.Info("grace window granted", zap.String("chat_id", chatID))
		publish(ctx, m.dispatcher, events.Event{
			Type:   events.EventChatGraceGranted,
			ChatID: chatID,
			Payload: events.ChatGraceGrantedPayload{
				ExtensionDeadline: now.Add(m.grace),
			},
		})
	}

	expired, err := m.chats.ListGraceExpired(ctx, now)
	if err != nil {
		return apperrors.MapError(err)
	}
	released := 0
	for _, chatID := range expired {
		if err := m.coordinator.Requeue(ctx, chatID, events.ReleaseReasonDeadlineExpired); err != nil {
			// a concurrent actor may have closed the chat between the scan
			// and the release; skip and keep sweeping
			m.logger.Warn("deadline release failed", zap.String("chat_id", chatID), zap.Error(err))
			continue
		}
		released++
	}

	m.metrics.RecordSweep(released)
	return nil
}

// MaybeSweep runs a sweep when at least the configured interval has passed
// since the previous one. Every inbound request is a valid trigger point,
// so this keeps request-driven sweeps cheap under load.
func (m *Monitor) MaybeSweep(ctx context.Context) error {
	now := time.Now().UnixNano()
	last := m.lastSweep.Load()
	if m.sweepInterval > 0 && now-last < int64(m.sweepInterval) {
		return nil
	}
	if !m.lastSweep.CompareAndSwap(last, now) {
		return nil
	}
	return m.Sweep(ctx)
}

// Extend is the manual extension: the operator buys a fresh response window
// before the grace period elapses. Resets the deadline and clears the
// extension fields regardless of scan timing.
func (m *Monitor) Extend(ctx context.Context, chatID string) (*domain.Chat, error) {
	deadline := time.Now().Add(m.responseDeadline)
	ok, err := m.chats.ExtendDeadline(ctx, chatID, deadline)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ok {
		chat, err := m.chats.GetByID(ctx, chatID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("chat", map[string]any{"chat_id": chatID})
			}
			return nil, apperrors.MapError(err)
		}
		return nil, apperrors.NewConflict("chat is not active", map[string]any{
			"chat_id": chatID,
			"status":  chat.Status,
		})
	}

	publish(ctx, m.dispatcher, events.Event{
		Type:   events.EventChatDeadlineExtended,
		ChatID: chatID,
		Payload: events.ChatDeadlineExtendedPayload{
			Deadline: deadline,
		},
	})

	chat, err := m.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return chat, nil
}
