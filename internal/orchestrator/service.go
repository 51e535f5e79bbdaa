// Package orchestrator drives cash operations and account-to-account
// transfers against the ledger service, recording every attempt and
// compensating failed transfer legs on a best-effort basis.
package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/clients"
	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/models"
	"github.com/velesbank/moneymove/internal/observability"
	"github.com/velesbank/moneymove/internal/records"
	"github.com/velesbank/moneymove/internal/risk"
)

// Ledger is the slice of the ledger client the orchestrator uses.
type Ledger interface {
	Details(ctx context.Context, login string) (*models.AccountDetails, error)
	Adjust(ctx context.Context, login string, adj clients.AdjustRequest) (*models.AccountDetails, error)
}

// Notifier emits fire-and-forget user notifications.
type Notifier interface {
	Emit(login, eventType, content string)
}

// Messages returned to callers verbatim. The API layer renders them as an
// errors list, so each one reads as a complete sentence.
const (
	msgAmountInvalid   = "amount must be positive with at most two decimal places"
	msgSelfTransfer    = "transfer to the same account is not allowed"
	msgSenderUnknown   = "sender account not found"
	msgReceiverUnknown = "recipient account not found"
	msgInProgress      = "operation with this token is still in progress"
	msgAlreadyFailed   = "operation with this token has already failed"
	msgFundsReturned   = "transfer failed, funds returned to the sender"
	msgFundsStuck      = "transfer failed, funds recovery is pending"
)

// Service coordinates the risk gate, the ledger, the operation records and
// the notification emitter.
type Service struct {
	records  records.Store
	ledger   Ledger
	gate     risk.Decider
	notifier Notifier
	logger   *zap.Logger
}

func NewService(recs records.Store, ledger Ledger, gate risk.Decider, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		records:  recs,
		ledger:   ledger,
		gate:     gate,
		notifier: notifier,
		logger:   logger,
	}
}

// replay maps an existing record found under the caller's token to the
// response of the original attempt.
func (s *Service) replay(rec *models.OperationRecord) []string {
	observability.IncrementIdempotencyEvent("replay")
	switch rec.Status {
	case domain.OpStatusDone:
		return nil
	case domain.OpStatusFailed:
		return []string{msgAlreadyFailed}
	default:
		return []string{msgInProgress}
	}
}

// callerMessage turns a ledger client error into a message safe to return.
// Unknown errors yield an empty string and must be treated as internal.
func callerMessage(err error) string {
	var rejection *clients.Rejection
	switch {
	case errors.As(err, &rejection):
		return rejection.Message
	case domain.IsBusiness(err):
		return err.Error()
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return domain.ErrLedgerUnavailable.Error()
	}
	return ""
}
