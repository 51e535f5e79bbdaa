package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/clients"
	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/models"
	"github.com/velesbank/moneymove/internal/observability"
	"github.com/velesbank/moneymove/internal/records"
	"github.com/velesbank/moneymove/internal/risk"
)

// TransferCommand moves money between two holders' primary accounts.
type TransferCommand struct {
	Token     string
	FromLogin string
	ToLogin   string
	Amount    decimal.Decimal
}

// Transfer runs the two-leg saga: debit the sender, credit the recipient,
// and on a failed credit attempt exactly one compensating deposit back to
// the sender. Every attempt that reaches the ledger leaves an operation
// record; failures carry an outcome naming where the money ended up, except
// when the outcome of a ledger call is unknown and the record stays PENDING
// for reconciliation.
func (s *Service) Transfer(ctx context.Context, cmd TransferCommand) ([]string, error) {
	amount := domain.Normalize(cmd.Amount)
	if !amount.IsPositive() {
		return []string{msgAmountInvalid}, nil
	}
	if cmd.FromLogin == cmd.ToLogin {
		return []string{msgSelfTransfer}, nil
	}

	// The gate rules first. A blocked attempt never reaches the ledger,
	// not even to resolve the accounts, and leaves no record.
	decision := s.gate.Decide(ctx, risk.Check{
		FromLogin: cmd.FromLogin,
		ToLogin:   cmd.ToLogin,
		Currency:  domain.DefaultCurrency,
		Amount:    amount,
	})
	if !decision.Allowed {
		observability.IncrementTransferOutcome("blocked")
		return []string{decision.Reason}, nil
	}

	src, msgs, err := s.resolve(ctx, cmd.FromLogin, msgSenderUnknown)
	if msgs != nil || err != nil {
		return msgs, err
	}
	dst, msgs, err := s.resolve(ctx, cmd.ToLogin, msgReceiverUnknown)
	if msgs != nil || err != nil {
		return msgs, err
	}

	if src.Currency != dst.Currency {
		return []string{domain.ErrCurrencyMismatch.Error()}, nil
	}
	if src.Balance.LessThan(amount) {
		return []string{domain.ErrInsufficientFunds.Error()}, nil
	}

	rec, existing, err := s.records.Begin(ctx, records.Intent{
		Token:         cmd.Token,
		Kind:          domain.OpKindTransfer,
		Type:          domain.OpTypeWithdraw,
		SourceAccount: src.AccountID,
		DestAccount:   &dst.AccountID,
		Amount:        amount,
		Currency:      src.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("begin transfer record: %w", err)
	}
	if existing {
		return s.replay(rec), nil
	}

	// Debit leg. A rejection here means no money moved; an unavailable
	// ledger means the outcome is unknown, so the record stays PENDING
	// for the sweeper instead of claiming a clean failure.
	_, err = s.ledger.Adjust(ctx, cmd.FromLogin, clients.AdjustRequest{
		Amount:    amount,
		Type:      domain.OpTypeWithdraw,
		AccountID: &src.AccountID,
	})
	if err != nil {
		msg := callerMessage(err)
		if msg == "" || errors.Is(err, domain.ErrLedgerUnavailable) {
			return nil, fmt.Errorf("transfer debit: %w", err)
		}
		s.fail(ctx, rec.ID, cmd.Token, domain.OutcomeFailedClean)
		observability.IncrementTransferOutcome("failed_clean")
		return []string{msg}, nil
	}

	// Credit leg.
	_, err = s.ledger.Adjust(ctx, cmd.ToLogin, clients.AdjustRequest{
		Amount:    amount,
		Type:      domain.OpTypeDeposit,
		AccountID: &dst.AccountID,
	})
	if err != nil {
		return s.compensate(ctx, cmd, rec, src, amount, err)
	}

	if err := s.records.Complete(ctx, rec.ID); err != nil {
		s.logger.Error("mark transfer record done", zap.String("token", cmd.Token), zap.Error(err))
	}
	observability.IncrementTransferOutcome("done")

	s.notifier.Emit(cmd.FromLogin, domain.EventTransferOut,
		fmt.Sprintf("Transferred %s %s to %s", amount.StringFixed(2), src.Currency, cmd.ToLogin))
	s.notifier.Emit(cmd.ToLogin, domain.EventTransferIn,
		fmt.Sprintf("Received %s %s from %s", amount.StringFixed(2), src.Currency, cmd.FromLogin))

	s.logger.Info("transfer done",
		zap.String("from", cmd.FromLogin),
		zap.String("to", cmd.ToLogin),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("currency", src.Currency),
	)
	return nil, nil
}

// compensate handles a failed credit leg: one reverse deposit to the sender,
// attempted exactly once. Whatever happens the record goes terminal; the
// outcome says whether the money made it back.
func (s *Service) compensate(ctx context.Context, cmd TransferCommand, rec *models.OperationRecord, src *models.AccountDetails, amount decimal.Decimal, creditErr error) ([]string, error) {
	s.logger.Warn("transfer credit leg failed, compensating",
		zap.String("token", cmd.Token),
		zap.String("from", cmd.FromLogin),
		zap.String("to", cmd.ToLogin),
		zap.Error(creditErr),
	)

	_, err := s.ledger.Adjust(ctx, cmd.FromLogin, clients.AdjustRequest{
		Amount:    amount,
		Type:      domain.OpTypeDeposit,
		AccountID: &src.AccountID,
	})
	if err != nil {
		s.fail(ctx, rec.ID, cmd.Token, domain.OutcomeFailedUncompensated)
		observability.IncrementTransferOutcome("failed_uncompensated")
		observability.IncrementStuckFunds(src.Currency)
		s.logger.Error("compensation failed, funds stuck",
			zap.String("token", cmd.Token),
			zap.String("from", cmd.FromLogin),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err),
		)
		return []string{msgFundsStuck}, nil
	}

	s.fail(ctx, rec.ID, cmd.Token, domain.OutcomeFailedCompensated)
	observability.IncrementTransferOutcome("failed_compensated")
	return []string{msgFundsReturned}, nil
}

// resolve fetches one side's account, mapping a missing holder to the given
// caller message.
func (s *Service) resolve(ctx context.Context, login, notFoundMsg string) (*models.AccountDetails, []string, error) {
	acct, err := s.ledger.Details(ctx, login)
	if err == nil {
		return acct, nil, nil
	}
	if msg := callerMessage(err); msg != "" {
		if msg == domain.ErrAccountNotFound.Error() {
			msg = notFoundMsg
		}
		return nil, []string{msg}, nil
	}
	return nil, nil, fmt.Errorf("resolve %s: %w", login, err)
}

func (s *Service) fail(ctx context.Context, id uuid.UUID, token, outcome string) {
	if err := s.records.Fail(ctx, id, outcome); err != nil {
		s.logger.Error("mark transfer record failed",
			zap.String("token", token), zap.String("outcome", outcome), zap.Error(err))
	}
}
