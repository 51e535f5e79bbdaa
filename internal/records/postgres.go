package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/models"
)

type pgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps operation records in the orchestrator's own schema.
type PostgresStore struct {
	db pgxPool
}

func NewPostgresStore(db pgxPool) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, token, kind, op_type, source_account, dest_account, amount, currency, status, outcome, version, created_at, updated_at`

func (s *PostgresStore) Begin(ctx context.Context, intent Intent) (*models.OperationRecord, bool, error) {
	rec := &models.OperationRecord{
		ID:            uuid.New(),
		Token:         intent.Token,
		Kind:          intent.Kind,
		Type:          intent.Type,
		SourceAccount: intent.SourceAccount,
		DestAccount:   intent.DestAccount,
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		Status:        domain.OpStatusPending,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO operation_records (id, token, kind, op_type, source_account, dest_account, amount, currency, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		 ON CONFLICT (token) DO NOTHING
		 RETURNING created_at, updated_at`,
		rec.ID, rec.Token, rec.Kind, rec.Type, rec.SourceAccount, rec.DestAccount,
		rec.Amount, rec.Currency, rec.Status,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert operation record: %w", err)
	}

	// Token already used: return the original attempt.
	existing, err := s.ByToken(ctx, intent.Token)
	if err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, domain.OpStatusDone, "")
}

func (s *PostgresStore) Fail(ctx context.Context, id uuid.UUID, outcome string) error {
	return s.finish(ctx, id, domain.OpStatusFailed, outcome)
}

func (s *PostgresStore) finish(ctx context.Context, id uuid.UUID, status, outcome string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE operation_records
		 SET status = $2, outcome = $3, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND (status = 'PENDING' OR (status = $2 AND outcome = $3))`,
		id, status, outcome,
	)
	if err != nil {
		return fmt.Errorf("finish operation record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists int
		err := s.db.QueryRow(ctx, `SELECT 1 FROM operation_records WHERE id = $1`, id).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check operation record: %w", err)
		}
		return ErrTerminalConflict
	}
	return nil
}

func (s *PostgresStore) StalePending(ctx context.Context, olderThan time.Duration) ([]models.OperationRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+recordColumns+` FROM operation_records
		 WHERE status = 'PENDING' AND updated_at < NOW() - $1::interval
		 ORDER BY updated_at`,
		olderThan.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("select stale records: %w", err)
	}
	defer rows.Close()

	var out []models.OperationRecord
	for rows.Next() {
		var rec models.OperationRecord
		if err := rows.Scan(&rec.ID, &rec.Token, &rec.Kind, &rec.Type, &rec.SourceAccount, &rec.DestAccount,
			&rec.Amount, &rec.Currency, &rec.Status, &rec.Outcome, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stale record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ByToken(ctx context.Context, token string) (*models.OperationRecord, error) {
	rec := &models.OperationRecord{}
	err := s.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM operation_records WHERE token = $1`, token,
	).Scan(&rec.ID, &rec.Token, &rec.Kind, &rec.Type, &rec.SourceAccount, &rec.DestAccount,
		&rec.Amount, &rec.Currency, &rec.Status, &rec.Outcome, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select operation record: %w", err)
	}
	return rec, nil
}
