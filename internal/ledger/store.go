package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/velesbank/moneymove/internal/models"
)

// AccountRef identifies exactly one bank-account row: either an explicit
// account id, or the holder's primary account resolved from the login.
type AccountRef struct {
	Login     string
	AccountID *uuid.UUID
}

// Store abstracts the ledger's persistence.
//
// Mutate is the locked read-modify-write primitive: it acquires an exclusive
// lock on the single account row named by ref, loads the current state, calls
// apply, and persists the result with a version bump. If apply returns an
// error nothing is persisted. Mutations on different accounts must not block
// each other.
type Store interface {
	CreateHolder(ctx context.Context, holder *models.Holder, account *models.BankAccount) error
	HolderByLogin(ctx context.Context, login string) (*models.Holder, error)
	AccountsByLogin(ctx context.Context, login string) ([]models.BankAccount, error)
	Mutate(ctx context.Context, ref AccountRef, apply func(acct *models.BankAccount) error) (*models.BankAccount, error)
}
