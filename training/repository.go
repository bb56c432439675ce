package training

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRecordNotFound reports a lookup for a training record that does not
// exist.
var ErrRecordNotFound = errors.New("training record not found")

type Repository interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context) ([]Record, error)
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, record *Record) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO trainings (id, site, content, document_name, document, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, record.ID, record.Site, record.Content, record.DocumentName, record.Document)
	if err != nil {
		return fmt.Errorf("insert training record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	var record Record
	err := r.pool.QueryRow(ctx, `
		SELECT id, site, content, document_name, document, created_at
		FROM trainings WHERE id = $1
	`, id).Scan(&record.ID, &record.Site, &record.Content, &record.DocumentName, &record.Document, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("query training record: %w", err)
	}
	return &record, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, site, content, document_name, document, created_at
		FROM trainings ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list training records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.ID, &record.Site, &record.Content, &record.DocumentName, &record.Document, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan training record: %w", err)
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

var _ Repository = (*PostgresRepository)(nil)
