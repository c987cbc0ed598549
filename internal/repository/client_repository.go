package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
)

// ClientRepository handles persistence for chat clients.
type ClientRepository interface {
	// UpsertByIP creates or refreshes the client keyed by IP address and
	// fills the generated fields on the passed struct.
	UpsertByIP(ctx context.Context, client *domain.Client) error
	GetByID(ctx context.Context, id string) (*domain.Client, error)
	List(ctx context.Context) ([]domain.Client, error)
}

type clientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository instantiates the repository.
func NewClientRepository(pool *pgxpool.Pool) ClientRepository {
	return &clientRepository{pool: pool}
}

func (r *clientRepository) UpsertByIP(ctx context.Context, client *domain.Client) error {
	const query = `
        INSERT INTO clients (ip_address, name, email, phone, last_seen)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (ip_address)
        DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
                      phone = EXCLUDED.phone, last_seen = NOW()
        RETURNING id, created_at, last_seen`
	return r.pool.QueryRow(ctx, query,
		client.IPAddress,
		client.Name,
		client.Email,
		client.Phone,
	).Scan(&client.ID, &client.CreatedAt, &client.LastSeen)
}

func (r *clientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	const query = `
        SELECT id, ip_address, name, email, phone, created_at, last_seen
        FROM clients WHERE id=$1`

	var client domain.Client
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&client.ID,
		&client.IPAddress,
		&client.Name,
		&client.Email,
		&client.Phone,
		&client.CreatedAt,
		&client.LastSeen,
	); err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *clientRepository) List(ctx context.Context) ([]domain.Client, error) {
	const query = `
        SELECT id, ip_address, name, email, phone, created_at, last_seen
        FROM clients
        ORDER BY last_seen DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Client
	for rows.Next() {
		var client domain.Client
		if err := rows.Scan(
			&client.ID,
			&client.IPAddress,
			&client.Name,
			&client.Email,
			&client.Phone,
			&client.CreatedAt,
			&client.LastSeen,
		); err != nil {
			return nil, err
		}
		result = append(result, client)
	}
	return result, rows.Err()
}
