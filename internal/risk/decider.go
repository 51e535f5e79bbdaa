// Package risk holds the decision rules behind the blocker service. A
// Decider looks at one money movement and says yes or no; the transport
// around it lives in the api layer.
package risk

import (
	"context"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/observability"
)

// Check describes one money movement submitted for screening.
type Check struct {
	FromLogin string          `json:"fromLogin"`
	ToLogin   string          `json:"toLogin"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
}

// Decision is the gate's verdict. Reason is set only when Allowed is false.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type Decider interface {
	Decide(ctx context.Context, check Check) Decision
}

// EveryNth blocks every n-th check it sees and allows the rest. It stands in
// for a real scoring engine while keeping the deny path exercised end to end.
type EveryNth struct {
	n       int64
	counter atomic.Int64
	logger  *zap.Logger
}

// NewEveryNth builds the rule. Values of n below 2 are clamped to 2 so a
// zero value can never panic the modulo.
func NewEveryNth(n int, logger *zap.Logger) *EveryNth {
	if n < 2 {
		n = 2
	}
	return &EveryNth{n: int64(n), logger: logger}
}

func (d *EveryNth) Decide(ctx context.Context, check Check) Decision {
	seq := d.counter.Add(1)
	if seq%d.n != 0 {
		return Decision{Allowed: true}
	}

	observability.IncrementBlocked(check.Currency)
	d.logger.Info("operation blocked by risk control",
		zap.String("from", check.FromLogin),
		zap.String("to", check.ToLogin),
		zap.String("currency", check.Currency),
		zap.String("amount", check.Amount.StringFixed(2)),
		zap.Int64("sequence", seq),
	)
	return Decision{Allowed: false, Reason: "operation blocked by risk control"}
}
