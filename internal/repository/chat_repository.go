package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
)

// ClaimResult reports the outcome of a conditional claim attempt.
type ClaimResult struct {
	// Claimed is true when the chat moved waiting -> active in this call.
	Claimed bool
	// AtCapacity is true when the claim failed because the operator already
	// holds the maximum number of active chats.
	AtCapacity bool
}

// ChatRepository encapsulates chat persistence. All state transitions are
// conditional single-unit writes so that concurrent schedulers cannot
// interleave between a read and its dependent write.
type ChatRepository interface {
	Create(ctx context.Context, chat *domain.Chat) error
	GetByID(ctx context.Context, id string) (*domain.Chat, error)
	// FindOpenByClient returns the newest waiting or active chat for the
	// client, or nil when the client has none.
	FindOpenByClient(ctx context.Context, clientID string) (*domain.Chat, error)
	// OldestWaiting returns the waiting chat with the smallest created_at,
	// or nil when the queue is empty.
	OldestWaiting(ctx context.Context) (*domain.Chat, error)
	// Claim atomically moves the chat waiting -> active for the operator,
	// enforcing the capacity cap inside the same unit of work.
	Claim(ctx context.Context, chatID, operator string, assignedAt, deadline time.Time, capacity int) (ClaimResult, error)
	// Requeue moves an active chat back to waiting and clears every
	// assignment field. Returns false when the chat was not active.
	Requeue(ctx context.Context, chatID string) (bool, error)
	// Finish moves the chat to a terminal status and clears assignment
	// fields. Returns false when the chat is already closed or missing.
	Finish(ctx context.Context, chatID string, status domain.ChatStatus) (bool, error)
	// ExtendDeadline resets the response deadline and clears the extension
	// window. Returns false when the chat is not active.
	ExtendDeadline(ctx context.Context, chatID string, deadline time.Time) (bool, error)
	// GrantGrace opens the one-time extension window for every active chat
	// whose deadline lapsed, returning the affected chat ids.
	GrantGrace(ctx context.Context, now, graceUntil time.Time) ([]string, error)
	// ListGraceExpired returns ids of active chats whose grace window has
	// also lapsed, oldest first.
	ListGraceExpired(ctx context.Context, now time.Time) ([]string, error)
	// ListAssignedTo returns the operator's active chats ordered by
	// original created_at.
	ListAssignedTo(ctx context.Context, operator string) ([]domain.Chat, error)
	CountActiveByOperator(ctx context.Context, operator string) (int, error)
	Touch(ctx context.Context, chatID string) error
	ListOverview(ctx context.Context) ([]domain.ChatOverview, error)
}

type chatRepository struct {
	pool *pgxpool.Pool
}

// NewChatRepository instantiates the repository.
func NewChatRepository(pool *pgxpool.Pool) ChatRepository {
	return &chatRepository{pool: pool}
}

const chatColumns = `id, client_id, status, assigned_operator, assigned_at, deadline,
        extension_requested, extension_deadline, created_at, updated_at`

func (r *chatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	const query = `
        INSERT INTO chats (client_id, status)
        VALUES ($1, 'waiting')
        RETURNING id, status, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, chat.ClientID).
		Scan(&chat.ID, &chat.Status, &chat.CreatedAt, &chat.UpdatedAt)
}

func (r *chatRepository) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *chatRepository) FindOpenByClient(ctx context.Context, clientID string) (*domain.Chat, error) {
	query := `SELECT ` + chatColumns + `
        FROM chats
        WHERE client_id=$1 AND status IN ('waiting','active')
        ORDER BY created_at DESC LIMIT 1`
	chat, err := r.fetchSingle(ctx, query, clientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return chat, err
}

func (r *chatRepository) OldestWaiting(ctx context.Context) (*domain.Chat, error) {
	query := `SELECT ` + chatColumns + `
        FROM chats
        WHERE status='waiting'
        ORDER BY created_at ASC LIMIT 1`
	var chat domain.Chat
	if err := r.pool.QueryRow(ctx, query).Scan(chatFields(&chat)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &chat, nil
}

// Claim serializes per operator by locking the operator row, derives the
// active count inside the same transaction, and applies the conditional
// status flip. Losing the waiting-status race and hitting the cap are both
// reported without error so the engine can retry selection.
func (r *chatRepository) Claim(ctx context.Context, chatID, operator string, assignedAt, deadline time.Time, capacity int) (ClaimResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ClaimResult{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT 1 FROM operators WHERE name=$1 FOR UPDATE`, operator); err != nil {
		return ClaimResult{}, err
	}

	var active int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM chats WHERE assigned_operator=$1 AND status='active'`,
		operator,
	).Scan(&active); err != nil {
		return ClaimResult{}, err
	}
	if active >= capacity {
		return ClaimResult{AtCapacity: true}, tx.Commit(ctx)
	}

	cmd, err := tx.Exec(ctx, `
        UPDATE chats
        SET status='active', assigned_operator=$1, assigned_at=$2, deadline=$3,
            extension_requested=FALSE, extension_deadline=NULL, updated_at=NOW()
        WHERE id=$4 AND status='waiting'`,
		operator, assignedAt, deadline, chatID,
	)
	if err != nil {
		return ClaimResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{Claimed: cmd.RowsAffected() == 1}, nil
}

func (r *chatRepository) Requeue(ctx context.Context, chatID string) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE chats
        SET status='waiting', assigned_operator=NULL, assigned_at=NULL, deadline=NULL,
            extension_requested=FALSE, extension_deadline=NULL, updated_at=NOW()
        WHERE id=$1 AND status='active'`,
		chatID,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *chatRepository) Finish(ctx context.Context, chatID string, status domain.ChatStatus) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE chats
        SET status=$2, assigned_operator=NULL, assigned_at=NULL, deadline=NULL,
            extension_requested=FALSE, extension_deadline=NULL, updated_at=NOW()
        WHERE id=$1 AND status <> 'closed'`,
		chatID, status,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *chatRepository) ExtendDeadline(ctx context.Context, chatID string, deadline time.Time) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
        UPDATE chats
        SET deadline=$2, extension_requested=FALSE, extension_deadline=NULL, updated_at=NOW()
        WHERE id=$1 AND status='active'`,
		chatID, deadline,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *chatRepository) GrantGrace(ctx context.Context, now, graceUntil time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
        UPDATE chats
        SET extension_requested=TRUE, extension_deadline=$2, updated_at=NOW()
        WHERE status='active' AND extension_requested=FALSE AND deadline < $1
        RETURNING id`,
		now, graceUntil,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *chatRepository) ListGraceExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id FROM chats
        WHERE status='active' AND extension_requested=TRUE AND extension_deadline < $1
        ORDER BY created_at ASC`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *chatRepository) ListAssignedTo(ctx context.Context, operator string) ([]domain.Chat, error) {
	query := `SELECT ` + chatColumns + `
        FROM chats
        WHERE assigned_operator=$1 AND status='active'
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, operator)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Chat
	for rows.Next() {
		var chat domain.Chat
		if err := rows.Scan(chatFields(&chat)...); err != nil {
			return nil, err
		}
		result = append(result, chat)
	}
	return result, rows.Err()
}

func (r *chatRepository) CountActiveByOperator(ctx context.Context, operator string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chats WHERE assigned_operator=$1 AND status='active'`,
		operator,
	).Scan(&count)
	return count, err
}

func (r *chatRepository) Touch(ctx context.Context, chatID string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE chats SET updated_at=NOW() WHERE id=$1`, chatID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *chatRepository) ListOverview(ctx context.Context) ([]domain.ChatOverview, error) {
	const query = `
        SELECT c.id, c.status, c.assigned_operator, cl.name, cl.email, cl.phone, cl.ip_address,
               (SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id) AS message_count,
               c.created_at, c.updated_at
        FROM chats c
        JOIN clients cl ON c.client_id = cl.id
        ORDER BY c.updated_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChatOverview
	for rows.Next() {
		var item domain.ChatOverview
		if err := rows.Scan(
			&item.ID,
			&item.Status,
			&item.AssignedOperator,
			&item.ClientName,
			&item.Email,
			&item.Phone,
			&item.IPAddress,
			&item.MessageCount,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *chatRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Chat, error) {
	var chat domain.Chat
	if err := r.pool.QueryRow(ctx, query, arg).Scan(chatFields(&chat)...); err != nil {
		return nil, err
	}
	return &chat, nil
}

func chatFields(chat *domain.Chat) []any {
	return []any{
		&chat.ID,
		&chat.ClientID,
		&chat.Status,
		&chat.AssignedOperator,
		&chat.AssignedAt,
		&chat.Deadline,
		&chat.ExtensionRequested,
		&chat.ExtensionDeadline,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	}
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
