package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velesbank/moneymove/internal/clients"
	"github.com/velesbank/moneymove/internal/domain"
	"github.com/velesbank/moneymove/internal/models"
	"github.com/velesbank/moneymove/internal/records"
	"github.com/velesbank/moneymove/internal/risk"
)

type fakeLedger struct {
	mu       sync.Mutex
	accounts map[string]*models.AccountDetails
	// failures maps "login/TYPE" to the error that Adjust call should return.
	failures     map[string]error
	detailsCalls int
	adjustCalls  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		accounts: make(map[string]*models.AccountDetails),
		failures: make(map[string]error),
	}
}

func (l *fakeLedger) add(login, currency, balance string) {
	l.accounts[login] = &models.AccountDetails{
		HolderID:  uuid.New(),
		Login:     login,
		AccountID: uuid.New(),
		Currency:  currency,
		Balance:   decimal.RequireFromString(balance),
	}
}

func (l *fakeLedger) balance(login string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[login].Balance.StringFixed(2)
}

func (l *fakeLedger) Details(ctx context.Context, login string) (*models.AccountDetails, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.detailsCalls++
	acct, ok := l.accounts[login]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	snapshot := *acct
	return &snapshot, nil
}

func (l *fakeLedger) Adjust(ctx context.Context, login string, adj clients.AdjustRequest) (*models.AccountDetails, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.adjustCalls++
	if err, ok := l.failures[login+"/"+adj.Type]; ok {
		return nil, err
	}
	acct, ok := l.accounts[login]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if adj.Type == domain.OpTypeWithdraw {
		if acct.Balance.LessThan(adj.Amount) {
			return nil, domain.ErrInsufficientFunds
		}
		acct.Balance = acct.Balance.Sub(adj.Amount)
	} else {
		acct.Balance = acct.Balance.Add(adj.Amount)
	}
	snapshot := *acct
	return &snapshot, nil
}

type fakeGate struct {
	allow  bool
	reason string
	checks []risk.Check
}

func (g *fakeGate) Decide(ctx context.Context, check risk.Check) risk.Decision {
	g.checks = append(g.checks, check)
	if g.allow {
		return risk.Decision{Allowed: true}
	}
	return risk.Decision{Allowed: false, Reason: g.reason}
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Emit(login, eventType, content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, login+":"+eventType)
}

type fixture struct {
	svc      *Service
	ledger   *fakeLedger
	gate     *fakeGate
	notifier *fakeNotifier
	records  *records.MemoryStore
}

func newFixture() *fixture {
	ledger := newFakeLedger()
	gate := &fakeGate{allow: true}
	notifier := &fakeNotifier{}
	recs := records.NewMemoryStore()
	return &fixture{
		svc:      NewService(recs, ledger, gate, notifier, zap.NewNop()),
		ledger:   ledger,
		gate:     gate,
		notifier: notifier,
		records:  recs,
	}
}

func (f *fixture) recordByToken(t *testing.T, token string) *models.OperationRecord {
	t.Helper()
	rec, err := f.records.ByToken(context.Background(), token)
	require.NoError(t, err)
	return rec
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTransferHappyPath(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")
	f.ledger.add("bob", "RUB", "100.00")

	msgs, err := f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-1", FromLogin: "alice", ToLogin: "bob", Amount: amount("150.00"),
	})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.Equal(t, "350.00", f.ledger.balance("alice"))
	assert.Equal(t, "250.00", f.ledger.balance("bob"))

	rec := f.recordByToken(t, "t-1")
	assert.Equal(t, domain.OpStatusDone, rec.Status)
	assert.Equal(t, domain.OpKindTransfer, rec.Kind)

	assert.ElementsMatch(t, []string{
		"alice:" + domain.EventTransferOut,
		"bob:" + domain.EventTransferIn,
	}, f.notifier.events)
}

func TestTransferRoundsAmountOnce(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")
	f.ledger.add("bob", "RUB", "0.00")

	msgs, err := f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-round", FromLogin: "alice", ToLogin: "bob", Amount: amount("10.005"),
	})
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, "10.01", f.ledger.balance("bob"))
}

func TestTransferRejectsSelfAndBadAmount(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")

	msgs, err := f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-self", FromLogin: "alice", ToLogin: "alice", Amount: amount("10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{msgSelfTransfer}, msgs)

	msgs, err = f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-neg", FromLogin: "alice", ToLogin: "bob", Amount: amount("-5.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{msgAmountInvalid}, msgs)
	assert.Equal(t, 0, f.records.Len())
}

func TestTransferUnknownParties(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")

	msgs, err := f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-ghost", FromLogin: "ghost", ToLogin: "alice", Amount: amount("10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{msgSenderUnknown}, msgs)

	msgs, err = f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-ghost2", FromLogin: "alice", ToLogin: "ghost", Amount: amount("10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{msgReceiverUnknown}, msgs)
	assert.Equal(t, 0, f.records.Len())
}

func TestTransferCurrencyMismatch(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")
	f.ledger.add("bob", "USD", "100.00")

	msgs, err := f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-fx", FromLogin: "alice", ToLogin: "bob", Amount: amount("10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.ErrCurrencyMismatch.Error()}, msgs)
	assert.Equal(t, "500.00", f.ledger.balance("alice"))
	assert.Equal(t, 0, f.records.Len())
}

func TestTransferInsufficientFundsBeforeAnyLeg(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "10.00")
	f.ledger.add("bob", "RUB", "0.00")

	msgs, err := f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-poor", FromLogin: "alice", ToLogin: "bob", Amount: amount("50.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.ErrInsufficientFunds.Error()}, msgs)
	assert.Equal(t, "10.00", f.ledger.balance("alice"))
	assert.Equal(t, 0, f.records.Len())
}

func TestTransferBlockedLeavesNoRecord(t *testing.T) {
	f := newFixture()
	f.gate.allow = false
	f.gate.reason = "operation blocked by risk control"
	f.ledger.add("alice", "RUB", "500.00")
	f.ledger.add("bob", "RUB", "100.00")

	msgs, err := f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-blocked", FromLogin: "alice", ToLogin: "bob", Amount: amount("150.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"operation blocked by risk control"}, msgs)

	// A blocked attempt makes no ledger call at all, not even a read.
	assert.Equal(t, 0, f.ledger.detailsCalls)
	assert.Equal(t, 0, f.ledger.adjustCalls)
	assert.Equal(t, "500.00", f.ledger.balance("alice"))
	assert.Equal(t, "100.00", f.ledger.balance("bob"))
	assert.Equal(t, 0, f.records.Len())
	assert.Empty(t, f.notifier.events)
}

func TestTransferDebitRejectionFailsClean(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")
	f.ledger.add("bob", "RUB", "100.00")
	f.ledger.failures["alice/"+domain.OpTypeWithdraw] = &clients.Rejection{Message: "sender account frozen"}

	msgs, err := f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-frozen", FromLogin: "alice", ToLogin: "bob", Amount: amount("150.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sender account frozen"}, msgs)

	rec := f.recordByToken(t, "t-frozen")
	assert.Equal(t, domain.OpStatusFailed, rec.Status)
	assert.Equal(t, domain.OutcomeFailedClean, rec.Outcome)
	assert.Empty(t, f.notifier.events)
}

func TestTransferDebitUnavailableStaysPending(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")
	f.ledger.add("bob", "RUB", "100.00")
	f.ledger.failures["alice/"+domain.OpTypeWithdraw] = domain.ErrLedgerUnavailable

	msgs, err := f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-down", FromLogin: "alice", ToLogin: "bob", Amount: amount("150.00"),
	})
	require.Error(t, err)
	assert.Empty(t, msgs)

	// A timed-out debit may have committed, so no terminal status and no
	// outcome until the sweeper reconciles it.
	rec := f.recordByToken(t, "t-down")
	assert.Equal(t, domain.OpStatusPending, rec.Status)
	assert.Empty(t, rec.Outcome)
	assert.Empty(t, f.notifier.events)
}

func TestTransferCreditFailureCompensates(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")
	f.ledger.add("bob", "RUB", "100.00")
	f.ledger.failures["bob/"+domain.OpTypeDeposit] = &clients.Rejection{Message: "recipient account frozen"}

	msgs, err := f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-comp", FromLogin: "alice", ToLogin: "bob", Amount: amount("150.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{msgFundsReturned}, msgs)

	// Compensating deposit put the debited amount back.
	assert.Equal(t, "500.00", f.ledger.balance("alice"))
	assert.Equal(t, "100.00", f.ledger.balance("bob"))

	rec := f.recordByToken(t, "t-comp")
	assert.Equal(t, domain.OpStatusFailed, rec.Status)
	assert.Equal(t, domain.OutcomeFailedCompensated, rec.Outcome)
	assert.Empty(t, f.notifier.events)
}

func TestTransferCompensationFailureMarksFundsStuck(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")
	f.ledger.add("bob", "RUB", "100.00")
	f.ledger.failures["bob/"+domain.OpTypeDeposit] = domain.ErrLedgerUnavailable
	f.ledger.failures["alice/"+domain.OpTypeDeposit] = domain.ErrLedgerUnavailable

	msgs, err := f.svc.Transfer(context.Background(), TransferCommand{
		Token: "t-stuck", FromLogin: "alice", ToLogin: "bob", Amount: amount("150.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{msgFundsStuck}, msgs)

	// The debit landed and nothing came back.
	assert.Equal(t, "350.00", f.ledger.balance("alice"))
	assert.Equal(t, "100.00", f.ledger.balance("bob"))

	rec := f.recordByToken(t, "t-stuck")
	assert.Equal(t, domain.OpStatusFailed, rec.Status)
	assert.Equal(t, domain.OutcomeFailedUncompensated, rec.Outcome)
}

func TestTransferReplaySameToken(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")
	f.ledger.add("bob", "RUB", "100.00")

	cmd := TransferCommand{Token: "t-replay", FromLogin: "alice", ToLogin: "bob", Amount: amount("150.00")}

	msgs, err := f.svc.Transfer(context.Background(), cmd)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = f.svc.Transfer(context.Background(), cmd)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Money moved exactly once.
	assert.Equal(t, "350.00", f.ledger.balance("alice"))
	assert.Equal(t, "250.00", f.ledger.balance("bob"))
	assert.Equal(t, 1, f.records.Len())
}

func TestCashDepositHappyPath(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")

	msgs, err := f.svc.Cash(context.Background(), CashCommand{
		Token: "c-1", Login: "alice", Type: domain.OpTypeDeposit, Amount: amount("50.00"),
	})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.Equal(t, "550.00", f.ledger.balance("alice"))
	rec := f.recordByToken(t, "c-1")
	assert.Equal(t, domain.OpStatusDone, rec.Status)
	assert.Equal(t, domain.OpKindCash, rec.Kind)
	assert.Equal(t, []string{"alice:" + domain.EventCashDeposit}, f.notifier.events)
}

func TestCashWithdrawInsufficientFunds(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "10.00")

	msgs, err := f.svc.Cash(context.Background(), CashCommand{
		Token: "c-poor", Login: "alice", Type: domain.OpTypeWithdraw, Amount: amount("50.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.ErrInsufficientFunds.Error()}, msgs)
	assert.Equal(t, "10.00", f.ledger.balance("alice"))
	assert.Equal(t, 0, f.records.Len())
}

func TestCashIgnoresRiskGate(t *testing.T) {
	f := newFixture()
	f.gate.allow = false
	f.gate.reason = "operation blocked by risk control"
	f.ledger.add("alice", "RUB", "500.00")

	// Risk screening applies to transfers only; cash lands regardless.
	msgs, err := f.svc.Cash(context.Background(), CashCommand{
		Token: "c-cash", Login: "alice", Type: domain.OpTypeWithdraw, Amount: amount("50.00"),
	})
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, f.gate.checks)
	assert.Equal(t, "450.00", f.ledger.balance("alice"))
}

func TestCashAdjustUnavailableStaysPending(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")
	f.ledger.failures["alice/"+domain.OpTypeDeposit] = domain.ErrLedgerUnavailable

	msgs, err := f.svc.Cash(context.Background(), CashCommand{
		Token: "c-down", Login: "alice", Type: domain.OpTypeDeposit, Amount: amount("50.00"),
	})
	require.Error(t, err)
	assert.Empty(t, msgs)

	rec := f.recordByToken(t, "c-down")
	assert.Equal(t, domain.OpStatusPending, rec.Status)
	assert.Empty(t, rec.Outcome)
	assert.Empty(t, f.notifier.events)
}

func TestCashReplaySameToken(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")

	cmd := CashCommand{Token: "c-replay", Login: "alice", Type: domain.OpTypeDeposit, Amount: amount("25.00")}

	msgs, err := f.svc.Cash(context.Background(), cmd)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = f.svc.Cash(context.Background(), cmd)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.Equal(t, "525.00", f.ledger.balance("alice"))
	assert.Equal(t, 1, f.records.Len())
}

func TestCashRejectsInvalidInput(t *testing.T) {
	f := newFixture()
	f.ledger.add("alice", "RUB", "500.00")

	msgs, err := f.svc.Cash(context.Background(), CashCommand{
		Token: "c-neg", Login: "alice", Type: domain.OpTypeDeposit, Amount: amount("0"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{msgAmountInvalid}, msgs)

	msgs, err = f.svc.Cash(context.Background(), CashCommand{
		Token: "c-type", Login: "alice", Type: "TRANSMUTE", Amount: amount("10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"operation type must be DEPOSIT or WITHDRAW"}, msgs)
	assert.Equal(t, 0, f.records.Len())
}
