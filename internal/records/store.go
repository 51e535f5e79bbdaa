// Package records keeps the durable bookkeeping for money-movement attempts.
// One record per caller-initiated intent, keyed by the caller's idempotency
// token: a cash operation has one record for its single ledger call, a
// transfer has one record covering both legs and the risk check.
package records

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velesbank/moneymove/internal/models"
)

var (
	// ErrTerminalConflict means a terminal record was asked to move to a
	// different terminal state. Terminal writes are idempotent for the same
	// target status; records never change once DONE or FAILED.
	ErrTerminalConflict = errors.New("operation record is already terminal")

	ErrNotFound = errors.New("operation record not found")
)

// Intent describes one money-movement attempt before it is persisted.
type Intent struct {
	Token         string
	Kind          string // cash | transfer
	Type          string // DEPOSIT | WITHDRAW; WITHDRAW for transfers (the source leg)
	SourceAccount uuid.UUID
	DestAccount   *uuid.UUID
	Amount        decimal.Decimal
	Currency      string
}

// Store persists operation records.
//
// Begin is lookup-or-insert on the idempotency token: retrying the same
// intent returns the original record with existing=true instead of creating
// a second one. Complete and Fail are terminal, idempotent writes.
type Store interface {
	Begin(ctx context.Context, intent Intent) (rec *models.OperationRecord, existing bool, err error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, outcome string) error
	ByToken(ctx context.Context, token string) (*models.OperationRecord, error)

	// StalePending lists records still PENDING after olderThan. These are
	// operations whose outcome was never learned and need reconciliation.
	StalePending(ctx context.Context, olderThan time.Duration) ([]models.OperationRecord, error)
}
