package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
)

// MessageRepository handles the append-only chat message log.
type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	ListByChat(ctx context.Context, chatID string) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository instantiates the repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	const query = `
        INSERT INTO messages (chat_id, sender_type, sender_name, message_text)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		message.ChatID,
		message.SenderType,
		message.SenderName,
		message.Text,
	).Scan(&message.ID, &message.CreatedAt)
}

func (r *messageRepository) ListByChat(ctx context.Context, chatID string) ([]domain.Message, error) {
	const query = `
        SELECT id, chat_id, sender_type, sender_name, message_text, created_at
        FROM messages
        WHERE chat_id=$1
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.SenderType,
			&msg.SenderName,
			&msg.Text,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
