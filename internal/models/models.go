package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Holder is a registered account holder, identified by login.
type Holder struct {
	ID        uuid.UUID `json:"id"`
	Login     string    `json:"login"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// BankAccount is a single balance-bearing account owned by a holder.
// A holder may own several accounts; "the primary account" is a policy
// decision, not a structural guarantee.
type BankAccount struct {
	ID            uuid.UUID       `json:"id"`
	HolderID      uuid.UUID       `json:"holder_id"`
	AccountNumber string          `json:"account_number"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AccountDetails is the ledger's read snapshot for one holder's primary account.
type AccountDetails struct {
	HolderID      uuid.UUID       `json:"holder_id"`
	Login         string          `json:"login"`
	AccountID     uuid.UUID       `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
}

// OperationRecord is the durable trace of one caller-initiated money-movement
// attempt: a single cash operation or a whole transfer. It is created PENDING
// before any remote mutation and is immutable once DONE or FAILED.
type OperationRecord struct {
	ID            uuid.UUID       `json:"id"`
	Token         string          `json:"token"`
	Kind          string          `json:"kind"`
	Type          string          `json:"type"`
	SourceAccount uuid.UUID       `json:"source_account"`
	DestAccount   *uuid.UUID      `json:"dest_account,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	Outcome       string          `json:"outcome,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Terminal reports whether the record has reached DONE or FAILED.
func (r *OperationRecord) Terminal() bool {
	return r.Status == "DONE" || r.Status == "FAILED"
}
