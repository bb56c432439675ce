package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type Repository interface {
	CreateQuestion(ctx context.Context, question *Question, embedding []float32) error
	AddEvidence(ctx context.Context, evidence []Evidence) error
	EvidenceFor(ctx context.Context, questionID uuid.UUID) ([]Evidence, error)
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateQuestion(ctx context.Context, question *Question, embedding []float32) error {
	if question.ID == uuid.Nil {
		question.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO questions (id, question, embedding, created_at)
		VALUES ($1, $2, $3, NOW())
	`, question.ID, question.Text, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddEvidence(ctx context.Context, evidence []Evidence) error {
	for i := range evidence {
		if evidence[i].ID == uuid.Nil {
			evidence[i].ID = uuid.New()
		}
		_, err := r.pool.Exec(ctx, `
			INSERT INTO question_sources (id, question_id, source, content, created_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, evidence[i].ID, evidence[i].QuestionID, evidence[i].Source, evidence[i].Text)
		if err != nil {
			return fmt.Errorf("insert question source %d: %w", i, err)
		}
	}
	return nil
}

func (r *PostgresRepository) EvidenceFor(ctx context.Context, questionID uuid.UUID) ([]Evidence, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, question_id, source, content
		FROM question_sources WHERE question_id = $1 ORDER BY created_at
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("query question sources: %w", err)
	}
	defer rows.Close()

	evidence := make([]Evidence, 0)
	for rows.Next() {
		var item Evidence
		if err := rows.Scan(&item.ID, &item.QuestionID, &item.Source, &item.Text); err != nil {
			return nil, fmt.Errorf("scan question source: %w", err)
		}
		evidence = append(evidence, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return evidence, nil
}

var _ Repository = (*PostgresRepository)(nil)
