package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
)

// OperatorRepository handles persistence for operators. Active chat counts
// are always derived from the chats table, never stored.
type OperatorRepository interface {
	Upsert(ctx context.Context, name string, status domain.OperatorStatus) error
	GetByName(ctx context.Context, name string) (*domain.Operator, error)
	// ListEligible returns online operators under the capacity cap, ordered
	// by ascending active count then name.
	ListEligible(ctx context.Context, capacity int) ([]domain.Operator, error)
	List(ctx context.Context) ([]domain.Operator, error)
}

type operatorRepository struct {
	pool *pgxpool.Pool
}

// NewOperatorRepository instantiates the repository.
func NewOperatorRepository(pool *pgxpool.Pool) OperatorRepository {
	return &operatorRepository{pool: pool}
}

func (r *operatorRepository) Upsert(ctx context.Context, name string, status domain.OperatorStatus) error {
	const query = `
        INSERT INTO operators (name, online_status)
        VALUES ($1, $2)
        ON CONFLICT (name)
        DO UPDATE SET online_status = EXCLUDED.online_status, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, query, name, status)
	return err
}

func (r *operatorRepository) GetByName(ctx context.Context, name string) (*domain.Operator, error) {
	const query = `
        SELECT o.name, o.online_status, o.created_at, o.updated_at,
               (SELECT COUNT(*) FROM chats c WHERE c.assigned_operator = o.name AND c.status = 'active')
        FROM operators o WHERE o.name=$1`

	var op domain.Operator
	if err := r.pool.QueryRow(ctx, query, name).Scan(
		&op.Name,
		&op.Status,
		&op.CreatedAt,
		&op.UpdatedAt,
		&op.ActiveChats,
	); err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operatorRepository) ListEligible(ctx context.Context, capacity int) ([]domain.Operator, error) {
	const query = `
        SELECT o.name, o.online_status, o.created_at, o.updated_at, COUNT(c.id) AS active_chats
        FROM operators o
        LEFT JOIN chats c ON c.assigned_operator = o.name AND c.status = 'active'
        WHERE o.online_status = 'online'
        GROUP BY o.name, o.online_status, o.created_at, o.updated_at
        HAVING COUNT(c.id) < $1
        ORDER BY COUNT(c.id) ASC, o.name ASC`
	return r.list(ctx, query, capacity)
}

func (r *operatorRepository) List(ctx context.Context) ([]domain.Operator, error) {
	const query = `
        SELECT o.name, o.online_status, o.created_at, o.updated_at, COUNT(c.id) AS active_chats
        FROM operators o
        LEFT JOIN chats c ON c.assigned_operator = o.name AND c.status = 'active'
        GROUP BY o.name, o.online_status, o.created_at, o.updated_at
        ORDER BY o.name ASC`
	return r.list(ctx, query)
}

func (r *operatorRepository) list(ctx context.Context, query string, args ...any) ([]domain.Operator, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Operator
	for rows.Next() {
		var op domain.Operator
		if err := rows.Scan(
			&op.Name,
			&op.Status,
			&op.CreatedAt,
			&op.UpdatedAt,
			&op.ActiveChats,
		); err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	return result, rows.Err()
}
