package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/records"
)

func TestSweeperFlagsOnlyStalePending(t *testing.T) {
	store := records.NewMemoryStore()
	ctx := context.Background()

	_, _, err := store.Begin(ctx, records.Intent{
		Token:         "stale",
		Kind:          domain.OpKindTransfer,
		Type:          domain.OpTypeWithdraw,
		SourceAccount: uuid.New(),
		Amount:        decimal.RequireFromString("10.00"),
		Currency:      "RUB",
	})
	require.NoError(t, err)

	done, _, err := store.Begin(ctx, records.Intent{
		Token:         "done",
		Kind:          domain.OpKindCash,
		Type:          domain.OpTypeDeposit,
		SourceAccount: uuid.New(),
		Amount:        decimal.RequireFromString("20.00"),
		Currency:      "RUB",
	})
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, done.ID))

	// Everything was just written, so nothing is stale yet.
	got, err := store.StalePending(ctx, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, got)

	// With a zero threshold the pending record shows up; the completed one
	// never does.
	time.Sleep(10 * time.Millisecond)
	got, err = store.StalePending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "stale", got[0].Token)
}

func TestSweeperRunStops(t *testing.T) {
	store := records.NewMemoryStore()
	w := NewSweeper(store, 10*time.Millisecond, time.Hour, zap.NewNop())

	stop := w.Run(context.Background())
	time.Sleep(30 * time.Millisecond)
	stop()
	// Stop twice must be safe.
	stop()
}
