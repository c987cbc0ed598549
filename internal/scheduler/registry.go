package scheduler

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/repository"
	apperrors "github.com/pr-poehali-dev/client-support-chat-2/pkg/util"
)

// Registry tracks operator availability. Going online triggers an
// assignment pass preferring that operator; any other status releases the
// operator's chats back to the queue.
type Registry struct {
	operators   repository.OperatorRepository
	engine      *Engine
	coordinator *Coordinator
	logger      *zap.Logger
}

// RegistryDependencies bundles registry collaborators.
type RegistryDependencies struct {
	OperatorRepo repository.OperatorRepository
	Engine       *Engine
	Coordinator  *Coordinator
	Logger       *zap.Logger
}

// NewRegistry creates the operator registry.
func NewRegistry(deps RegistryDependencies) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		operators:   deps.OperatorRepo,
		engine:      deps.Engine,
		coordinator: deps.Coordinator,
		logger:      logger,
	}
}

// SetStatus upserts the operator and applies the side effects of the
// availability change.
func (r *Registry) SetStatus(ctx context.Context, name string, status domain.OperatorStatus) error {
	if name == "" {
		return apperrors.NewValidationError("operator name required", nil)
	}
	if !status.IsValid() {
		return apperrors.NewValidationError("unknown operator status", map[string]any{"status": status})
	}

	if err := r.operators.Upsert(ctx, name, status); err != nil {
		return apperrors.MapError(err)
	}
	r.logger.Info("operator status changed",
		zap.String("operator", name),
		zap.String("status", string(status)))

	if status == domain.OperatorStatusOnline {
		return r.engine.Dispatch(ctx, name)
	}
	return r.coordinator.ReleaseOperator(ctx, name)
}

// Get returns the operator with its derived active chat count.
func (r *Registry) Get(ctx context.Context, name string) (*domain.Operator, error) {
	op, err := r.operators.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("operator", map[string]any{"operator": name})
		}
		return nil, apperrors.MapError(err)
	}
	return op, nil
}

// ListEligible returns online operators under the cap, least loaded first.
func (r *Registry) ListEligible(ctx context.Context) ([]domain.Operator, error) {
	operators, err := r.operators.ListEligible(ctx, r.engine.Capacity())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return operators, nil
}

// List returns every known operator with derived counts.
func (r *Registry) List(ctx context.Context) ([]domain.Operator, error) {
	operators, err := r.operators.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return operators, nil
}
