package domain

const (
	DefaultCurrency = "RUB"

	OpTypeDeposit  = "DEPOSIT"
	OpTypeWithdraw = "WITHDRAW"

	OpKindCash     = "cash"
	OpKindTransfer = "transfer"

	OpStatusPending = "PENDING"
	OpStatusDone    = "DONE"
	OpStatusFailed  = "FAILED"

	// Failure outcomes recorded on a FAILED operation. A transfer whose debit
	// leg never happened fails clean; one whose credit leg failed fails either
	// compensated (the reverse credit landed) or uncompensated (funds left the
	// source account and are stuck until manual reconciliation).
	OutcomeFailedClean         = "FAILED_CLEAN"
	OutcomeFailedCompensated   = "FAILED_COMPENSATED"
	OutcomeFailedUncompensated = "FAILED_UNCOMPENSATED"

	EventTransferIn   = "TRANSFER_IN"
	EventTransferOut  = "TRANSFER_OUT"
	EventCashDeposit  = "CASH_DEPOSIT"
	EventCashWithdraw = "CASH_WITHDRAW"
)
