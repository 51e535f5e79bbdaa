package records

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velesbank/moneymove/internal/domain"
)

func now() time.Time { return time.Now() }

func testIntent(token string) Intent {
	dest := uuid.New()
	return Intent{
		Token:         token,
		Kind:          domain.OpKindTransfer,
		Type:          domain.OpTypeWithdraw,
		SourceAccount: uuid.New(),
		DestAccount:   &dest,
		Amount:        decimal.RequireFromString("150.00"),
		Currency:      "RUB",
	}
}

func TestMemoryBeginIsLookupOrInsert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, existing, err := store.Begin(ctx, testIntent("tok-1"))
	require.NoError(t, err)
	assert.False(t, existing)
	assert.Equal(t, domain.OpStatusPending, rec.Status)

	again, existing, err := store.Begin(ctx, testIntent("tok-1"))
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, rec.ID, again.ID)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryTerminalWritesAreIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, _, err := store.Begin(ctx, testIntent("tok-2"))
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, rec.ID, domain.OutcomeFailedCompensated))
	// Same target status and outcome: safe to repeat.
	require.NoError(t, store.Fail(ctx, rec.ID, domain.OutcomeFailedCompensated))
	// Conflicting terminal transition: rejected, record unchanged.
	require.ErrorIs(t, store.Complete(ctx, rec.ID), ErrTerminalConflict)

	got, err := store.ByToken(ctx, "tok-2")
	require.NoError(t, err)
	assert.Equal(t, domain.OpStatusFailed, got.Status)
	assert.Equal(t, domain.OutcomeFailedCompensated, got.Outcome)
}

func TestMemoryFinishUnknownRecord(t *testing.T) {
	store := NewMemoryStore()
	require.ErrorIs(t, store.Complete(context.Background(), uuid.New()), ErrNotFound)
}

func TestPostgresBeginInsertsNewRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	intent := testIntent("tok-pg")

	mock.ExpectQuery(`INSERT INTO operation_records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now(), now()))

	rec, existing, err := store.Begin(context.Background(), intent)
	require.NoError(t, err)
	assert.False(t, existing)
	assert.Equal(t, domain.OpStatusPending, rec.Status)
	assert.Equal(t, "tok-pg", rec.Token)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBeginReturnsExistingOnTokenConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	intent := testIntent("tok-dup")
	existingID := uuid.New()

	// ON CONFLICT DO NOTHING yields no RETURNING row.
	mock.ExpectQuery(`INSERT INTO operation_records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}))
	mock.ExpectQuery(`SELECT (.+) FROM operation_records WHERE token`).
		WithArgs("tok-dup").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "token", "kind", "op_type", "source_account", "dest_account",
			"amount", "currency", "status", "outcome", "version", "created_at", "updated_at",
		}).AddRow(existingID, "tok-dup", domain.OpKindTransfer, domain.OpTypeWithdraw,
			intent.SourceAccount, intent.DestAccount, intent.Amount, "RUB",
			domain.OpStatusDone, "", int64(2), now(), now()))

	rec, existing, err := store.Begin(context.Background(), intent)
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, existingID, rec.ID)
	assert.Equal(t, domain.OpStatusDone, rec.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFinishConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	id := uuid.New()

	mock.ExpectExec(`UPDATE operation_records`).
		WithArgs(id, domain.OpStatusDone, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT 1 FROM operation_records`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))

	require.ErrorIs(t, store.Complete(context.Background(), id), ErrTerminalConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}
