package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/models"
)

var (
	// ErrInvalidAmount rejects non-positive amounts and amounts carrying more
	// than two decimal places: normalization is the caller's job and happens
	// exactly once, so the ledger refuses to re-round.
	ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")

	// ErrInvalidOperationType rejects adjustment types other than DEPOSIT/WITHDRAW.
	ErrInvalidOperationType = errors.New("operation type must be DEPOSIT or WITHDRAW")

	// ErrLoginTaken rejects registration of an already-registered login.
	ErrLoginTaken = errors.New("login already registered")
)

// Service owns holder bank-account balances and is the only writer of balance.
type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// AdjustCommand is one balance mutation: a credit (DEPOSIT) or debit
// (WITHDRAW) of a positive, already-normalized amount. AccountID pins the
// mutation to a specific account; when nil the holder's primary account is used.
type AdjustCommand struct {
	Amount    decimal.Decimal
	Type      string
	AccountID *uuid.UUID
}

// Register creates a holder with one zero-balance bank account.
func (s *Service) Register(ctx context.Context, login, name, currency string) (*models.AccountDetails, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return nil, fmt.Errorf("login is required")
	}
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	if _, err := s.store.HolderByLogin(ctx, login); err == nil {
		return nil, ErrLoginTaken
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	holder := &models.Holder{ID: uuid.New(), Login: login, Name: name}
	number, err := generateAccountNumber()
	if err != nil {
		return nil, fmt.Errorf("generate account number: %w", err)
	}
	account := &models.BankAccount{
		ID:            uuid.New(),
		HolderID:      holder.ID,
		AccountNumber: number,
		Currency:      currency,
		Balance:       decimal.Zero,
	}
	if err := s.store.CreateHolder(ctx, holder, account); err != nil {
		return nil, err
	}

	s.logger.Info("holder registered", zap.String("login", login), zap.String("account_number", number))
	return details(holder, account), nil
}

// AccountDetails resolves the holder's primary bank account snapshot.
func (s *Service) AccountDetails(ctx context.Context, login string) (*models.AccountDetails, error) {
	holder, err := s.store.HolderByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	accounts, err := s.store.AccountsByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return details(holder, &accounts[0]), nil
}

// Adjust applies one locked balance mutation. A WITHDRAW fails with
// ErrInsufficientFunds when the balance cannot cover the amount; no partial
// debit ever occurs. A DEPOSIT on an existing account always succeeds.
func (s *Service) Adjust(ctx context.Context, login string, cmd AdjustCommand) (*models.AccountDetails, error) {
	if !cmd.Amount.IsPositive() || !cmd.Amount.Equal(cmd.Amount.Round(2)) {
		return nil, ErrInvalidAmount
	}
	if cmd.Type != domain.OpTypeDeposit && cmd.Type != domain.OpTypeWithdraw {
		return nil, ErrInvalidOperationType
	}

	holder, err := s.store.HolderByLogin(ctx, login)
	if err != nil {
		return nil, err
	}

	acct, err := s.store.Mutate(ctx, AccountRef{Login: login, AccountID: cmd.AccountID}, func(acct *models.BankAccount) error {
		if cmd.Type == domain.OpTypeWithdraw {
			if acct.Balance.LessThan(cmd.Amount) {
				return domain.ErrInsufficientFunds
			}
			acct.Balance = acct.Balance.Sub(cmd.Amount)
			return nil
		}
		acct.Balance = acct.Balance.Add(cmd.Amount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("balance adjusted",
		zap.String("login", login),
		zap.String("type", cmd.Type),
		zap.String("amount", cmd.Amount.StringFixed(2)),
		zap.String("balance", acct.Balance.StringFixed(2)),
		zap.Int64("version", acct.Version),
	)
	return details(holder, acct), nil
}

func details(holder *models.Holder, acct *models.BankAccount) *models.AccountDetails {
	return &models.AccountDetails{
		HolderID:      holder.ID,
		Login:         holder.Login,
		AccountID:     acct.ID,
		AccountNumber: acct.AccountNumber,
		Currency:      acct.Currency,
		Balance:       acct.Balance,
	}
}

// Account numbers are display identifiers: fixed width 20, "4080" prefix.
func generateAccountNumber() (string, error) {
	var b strings.Builder
	b.WriteString("4080")
	for b.Len() < 20 {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteString(n.String())
	}
	return b.String(), nil
}
