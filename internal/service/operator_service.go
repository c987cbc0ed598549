package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/scheduler"
)

// OperatorService exposes operator availability workflows.
type OperatorService struct {
	registry *scheduler.Registry
	logger   *zap.Logger
}

// NewOperatorService constructs the service.
func NewOperatorService(registry *scheduler.Registry, logger *zap.Logger) *OperatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperatorService{registry: registry, logger: logger}
}

// SetStatus marks the operator online or unavailable. Going online may
// immediately pull waiting chats; anything else releases the operator's
// chats back to the queue.
func (s *OperatorService) SetStatus(ctx context.Context, name string, status domain.OperatorStatus) (*domain.Operator, error) {
	if err := s.registry.SetStatus(ctx, name, status); err != nil {
		return nil, err
	}
	return s.registry.Get(ctx, name)
}

// Get returns an operator with its derived active chat count.
func (s *OperatorService) Get(ctx context.Context, name string) (*domain.Operator, error) {
	return s.registry.Get(ctx, name)
}

// List returns all operators.
func (s *OperatorService) List(ctx context.Context) ([]domain.Operator, error) {
	return s.registry.List(ctx)
}
