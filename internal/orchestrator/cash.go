package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/clients"
	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/observability"
	"github.com/velesbank/moneymove/internal/records"
)

// CashCommand is a deposit or withdrawal of physical cash against one account.
type CashCommand struct {
	Token  string
	Login  string
	Type   string // DEPOSIT | WITHDRAW
	Amount decimal.Decimal
}

// Cash executes one cash operation. The returned messages are caller-facing
// rejections; an empty list means the operation landed. A non-nil error is an
// internal failure the API layer renders as a 500.
func (s *Service) Cash(ctx context.Context, cmd CashCommand) ([]string, error) {
	// Rounding happens here, exactly once; the ledger rejects anything not
	// already at two decimal places.
	amount := domain.Normalize(cmd.Amount)
	if !amount.IsPositive() {
		return []string{msgAmountInvalid}, nil
	}
	if cmd.Type != domain.OpTypeDeposit && cmd.Type != domain.OpTypeWithdraw {
		return []string{"operation type must be DEPOSIT or WITHDRAW"}, nil
	}

	acct, err := s.ledger.Details(ctx, cmd.Login)
	if err != nil {
		if msg := callerMessage(err); msg != "" {
			return []string{msg}, nil
		}
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	if cmd.Type == domain.OpTypeWithdraw && acct.Balance.LessThan(amount) {
		return []string{domain.ErrInsufficientFunds.Error()}, nil
	}

	rec, existing, err := s.records.Begin(ctx, records.Intent{
		Token:         cmd.Token,
		Kind:          domain.OpKindCash,
		Type:          cmd.Type,
		SourceAccount: acct.AccountID,
		Amount:        amount,
		Currency:      acct.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("begin cash record: %w", err)
	}
	if existing {
		return s.replay(rec), nil
	}

	_, err = s.ledger.Adjust(ctx, cmd.Login, clients.AdjustRequest{
		Amount:    amount,
		Type:      cmd.Type,
		AccountID: &acct.AccountID,
	})
	if err != nil {
		msg := callerMessage(err)
		if msg == "" || errors.Is(err, domain.ErrLedgerUnavailable) {
			// Outcome of the ledger call is unknown; leave the record PENDING
			// for reconciliation rather than guessing.
			return nil, fmt.Errorf("cash %s: %w", cmd.Type, err)
		}
		if failErr := s.records.Fail(ctx, rec.ID, domain.OutcomeFailedClean); failErr != nil {
			s.logger.Error("mark cash record failed", zap.String("token", cmd.Token), zap.Error(failErr))
		}
		observability.IncrementCashOutcome(cmd.Type, "failed_clean")
		return []string{msg}, nil
	}

	if err := s.records.Complete(ctx, rec.ID); err != nil {
		s.logger.Error("mark cash record done", zap.String("token", cmd.Token), zap.Error(err))
	}
	observability.IncrementCashOutcome(cmd.Type, "done")

	if cmd.Type == domain.OpTypeDeposit {
		s.notifier.Emit(cmd.Login, domain.EventCashDeposit,
			fmt.Sprintf("Deposited %s %s", amount.StringFixed(2), acct.Currency))
	} else {
		s.notifier.Emit(cmd.Login, domain.EventCashWithdraw,
			fmt.Sprintf("Withdrew %s %s", amount.StringFixed(2), acct.Currency))
	}

	s.logger.Info("cash operation done",
		zap.String("login", cmd.Login),
		zap.String("type", cmd.Type),
		zap.String("amount", amount.StringFixed(2)),
	)
	return nil, nil
}
