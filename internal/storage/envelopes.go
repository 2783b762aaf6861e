package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"casegate/internal/domain"
)

// EnvelopeStore persists envelopes in Postgres with signers as JSONB.
// Update holds a row lock for the duration of the callback.
type EnvelopeStore struct {
	db *sql.DB
}

func NewEnvelopeStore(pg *PostgresStore) *EnvelopeStore {
	return &EnvelopeStore{db: pg.db}
}

func (s *EnvelopeStore) Create(ctx context.Context, env *domain.Envelope) error {
	signers, err := json.Marshal(env.Signers)
	if err != nil {
		return fmt.Errorf("encode signers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO envelopes (id, document_id, document_name, status, signers, sent_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)
	`, env.ID, env.DocumentID, env.DocumentName, env.Status, string(signers), env.SentAt, env.CompletedAt, env.CreatedAt, env.UpdatedAt)
	return err
}

func (s *EnvelopeStore) Get(ctx context.Context, envelopeID string) (*domain.Envelope, error) {
	return getEnvelope(ctx, s.db, envelopeID, "")
}

func (s *EnvelopeStore) Update(ctx context.Context, envelopeID string, fn func(env *domain.Envelope) error) (*domain.Envelope, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	env, err := getEnvelope(ctx, tx, envelopeID, "FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if err := fn(env); err != nil {
		return nil, err
	}
	signers, err := json.Marshal(env.Signers)
	if err != nil {
		return nil, fmt.Errorf("encode signers: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE envelopes
		SET status = $2, signers = $3::jsonb, sent_at = $4, completed_at = $5, updated_at = $6
		WHERE id = $1
	`, env.ID, env.Status, string(signers), env.SentAt, env.CompletedAt, env.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return env, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEnvelope(ctx context.Context, q queryRower, envelopeID, suffix string) (*domain.Envelope, error) {
	var env domain.Envelope
	var rawSigners []byte
	var sentAt, completedAt sql.NullTime
	row := q.QueryRowContext(ctx, `
		SELECT id, document_id, document_name, status, signers, sent_at, completed_at, created_at, updated_at
		FROM envelopes
		WHERE id = $1
	`+suffix, envelopeID)
	if err := row.Scan(&env.ID, &env.DocumentID, &env.DocumentName, &env.Status, &rawSigners, &sentAt, &completedAt, &env.CreatedAt, &env.UpdatedAt); err != nil {
		return nil, mapNoRows(err, "envelope", envelopeID)
	}
	if err := json.Unmarshal(rawSigners, &env.Signers); err != nil {
		return nil, fmt.Errorf("decode signers: %w", err)
	}
	if sentAt.Valid {
		env.SentAt = &sentAt.Time
	}
	if completedAt.Valid {
		env.CompletedAt = &completedAt.Time
	}
	return &env, nil
}
