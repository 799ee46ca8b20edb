package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/chain"
	"github.com/custody_settlement/config"
	"github.com/custody_settlement/lock"
	"github.com/custody_settlement/logging"
	"github.com/custody_settlement/model"
	"github.com/custody_settlement/notify"
	"github.com/custody_settlement/repository"
	"github.com/shopspring/decimal"
)

const testPolicy = `
currencies:
  ETH:
    chain: ethereum
    decimals: 18
    confirmations: 12
    fee:
      flat: "0.001"
  USDT:
    chain: ethereum
    decimals: 6
    contract: "0xdac17f958d2ee523a2206206994597c13d831ec7"
    confirmations: 12
    fee:
      flat: "10"
  BTC:
    chain: bitcoin
    decimals: 8
    confirmations: 3
    fee:
      flat: "0.0001"
`

const (
	hotWalletETH = "0x9858effd232b4033e47d90003d41ec34ecaeda94"
	userAddress  = "0x742d35cc6634c0532925a3b844bc454e4438f44e"
)

var (
	admin = model.Principal{UserID: "admin-1", Role: model.RoleAdmin}
	alice = model.Principal{UserID: "alice", Role: "user"}
	bob   = model.Principal{UserID: "bob", Role: "user"}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []chain.SendRequest
	result  chain.SendResult
	err     error
	delay   time.Duration
	started chan struct{}
	proceed chan struct{}
	waitCtx bool
	// afterSend runs once the payout has been handed over.
	afterSend func()
}

func (f *fakeExecutor) Send(ctx context.Context, req chain.SendRequest) (chain.SendResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.proceed != nil {
		<-f.proceed
	}
	if f.waitCtx {
		<-ctx.Done()
		return chain.SendResult{}, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.afterSend != nil {
		f.afterSend()
	}
	return f.result, f.err
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeVerifier struct {
	mu     sync.Mutex
	calls  []chain.VerifyRequest
	result chain.VerifyResult
	err    error
}

func (f *fakeVerifier) Verify(_ context.Context, req chain.VerifyRequest) (chain.VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.result, f.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *eventRecorder) Dispatch(evt notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	store       *repository.MemoryStore
	ledger      *LedgerService
	audit       *AuditService
	wallets     *WalletService
	deposits    *DepositService
	withdrawals *WithdrawService
	executor    *fakeExecutor
	verifier    *fakeVerifier
	events      *eventRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithEvents(t, nil)
}

func newFixtureWithEvents(t *testing.T, events EventPublisher) *fixture {
	t.Helper()
	policy, err := config.ParsePolicy([]byte(testPolicy))
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	log := logging.Discard()
	store := repository.NewMemoryStore()
	rec := &eventRecorder{}
	if events == nil {
		events = rec
	}

	f := &fixture{
		store:    store,
		executor: &fakeExecutor{result: chain.SendResult{Success: true, TxHash: "0xabc"}},
		verifier: &fakeVerifier{},
		events:   rec,
	}
	addresses := chain.NewAddressValidator(nil)
	f.audit = NewAuditService(store)
	f.ledger = NewLedgerService(store, policy, f.audit, log)
	f.wallets = NewWalletService(store, f.ledger, f.audit, addresses, time.Minute, log)
	f.deposits = NewDepositService(store, f.ledger, f.audit, f.wallets, f.verifier, events, time.Second, log)
	f.withdrawals = NewWithdrawService(store, f.ledger, f.audit, f.wallets, addresses, f.executor, lock.NewLocalLocker(), events,
		WithdrawServiceConfig{ExecutorTimeout: time.Second, ExecutionLockTTL: time.Minute}, log)
	return f
}

func (f *fixture) fund(t *testing.T, userID, currency, amount string) {
	t.Helper()
	err := f.store.WithTx(context.Background(), func(tx repository.Tx) error {
		_, err := tx.CreditBalance(context.Background(), userID, currency, dec(amount))
		return err
	})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, userID, currency string) decimal.Decimal {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), userID, currency)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b.Amount
}

func (f *fixture) hotWallet(t *testing.T, currency, address string) *model.HotWallet {
	t.Helper()
	w, err := f.wallets.UpsertHotWallet(context.Background(), admin, UpsertHotWalletInput{Currency: currency, Address: address})
	if err != nil {
		t.Fatalf("upsert hot wallet: %v", err)
	}
	return w
}

func (f *fixture) auditActions(t *testing.T, entityID string) []string {
	t.Helper()
	list, _, err := f.audit.List(context.Background(), admin, repository.AuditQuery{EntityID: entityID, Size: 100})
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	out := make([]string, len(list))
	// oldest first
	for i, e := range list {
		out[len(list)-1-i] = e.Action
	}
	return out
}

func assertKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", kind)
	}
	if got := apperrors.KindOf(err); got != kind {
		t.Fatalf("expected %s, got %s (%v)", kind, got, err)
	}
}

func assertAmount(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("amount = %s, want %s", got, want)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRequireAdmin(t *testing.T) {
	if err := requireAdmin(admin, "op"); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	if err := requireAdmin(alice, "op"); !errors.Is(err, apperrors.ErrNotAuthorized) {
		t.Fatalf("expected NotAuthorized for user, got %v", err)
	}
	if err := requireAdmin(model.Principal{Role: model.RoleAdmin}, "op"); !errors.Is(err, apperrors.ErrNotAuthorized) {
		t.Fatalf("expected NotAuthorized without user id, got %v", err)
	}
}
