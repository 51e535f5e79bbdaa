package domain

import "errors"

var (
	// ErrInsufficientFunds is the business rejection for a debit that would
	// push the balance below zero. No partial debit ever occurs.
	ErrInsufficientFunds = errors.New("insufficient funds on account")

	// ErrAccountNotFound covers both an unknown holder login and a holder
	// without a resolvable bank account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCurrencyMismatch rejects a transfer between accounts held in
	// different currencies; the saga has no conversion step.
	ErrCurrencyMismatch = errors.New("accounts are held in different currencies")

	// ErrLedgerUnavailable is the infrastructure failure returned by the
	// ledger client when the remote service is unreachable or times out.
	// The underlying cause is logged, never shown to callers.
	ErrLedgerUnavailable = errors.New("account service unavailable")
)

// IsBusiness reports whether err is a business rejection rather than an
// infrastructure failure. Business rejections are surfaced to the caller
// verbatim and are never retried.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrCurrencyMismatch)
}
