package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/model"
	"github.com/shopspring/decimal"
)

type balanceKey struct {
	userID   string
	currency string
}

type memoryState struct {
	balances    map[balanceKey]model.Balance
	deposits    map[string]model.DepositRequest
	withdrawals map[string]model.WithdrawalRequest
	wallets     map[string]model.HotWallet // by currency
	audit       []model.AuditLogEntry
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		balances:    make(map[balanceKey]model.Balance, len(s.balances)),
		deposits:    make(map[string]model.DepositRequest, len(s.deposits)),
		withdrawals: make(map[string]model.WithdrawalRequest, len(s.withdrawals)),
		wallets:     make(map[string]model.HotWallet, len(s.wallets)),
		audit:       make([]model.AuditLogEntry, len(s.audit)),
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.deposits {
		c.deposits[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	copy(c.audit, s.audit)
	return c
}

// MemoryStore keeps everything in process. Transactions are serialized and
// work on a private copy that replaces the committed state only when fn
// returns nil.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: (&memoryState{}).clone()}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memoryTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) GetBalance(_ context.Context, userID, currency string) (*model.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.state.balances[balanceKey{userID, currency}]; ok {
		return &b, nil
	}
	return &model.Balance{UserID: userID, Currency: currency, Amount: decimal.Zero}, nil
}

func (s *MemoryStore) ListBalances(_ context.Context, userID string) ([]*model.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Balance
	for k, b := range s.state.balances {
		if k.userID == userID {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (s *MemoryStore) GetDeposit(_ context.Context, id string) (*model.DepositRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.deposits[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "get deposit", "deposit %s not found", id)
	}
	return &d, nil
}

func (s *MemoryStore) ListDeposits(_ context.Context, q ListQuery) ([]*model.DepositRequest, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*model.DepositRequest
	for _, d := range s.state.deposits {
		if matches(q, d.UserID, d.Currency, string(d.Status)) {
			d := d
			all = append(all, &d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return newerFirst(all[i].CreatedAt, all[j].CreatedAt, all[i].ID, all[j].ID) })
	return paginate(all, q.Page, q.Size), int64(len(all)), nil
}

func (s *MemoryStore) GetWithdrawal(_ context.Context, id string) (*model.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.state.withdrawals[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "get withdrawal", "withdrawal %s not found", id)
	}
	return &w, nil
}

func (s *MemoryStore) ListWithdrawals(_ context.Context, q ListQuery) ([]*model.WithdrawalRequest, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*model.WithdrawalRequest
	for _, w := range s.state.withdrawals {
		if matches(q, w.UserID, w.Currency, string(w.Status)) {
			w := w
			all = append(all, &w)
		}
	}
	sort.Slice(all, func(i, j int) bool { return newerFirst(all[i].CreatedAt, all[j].CreatedAt, all[i].ID, all[j].ID) })
	return paginate(all, q.Page, q.Size), int64(len(all)), nil
}

func (s *MemoryStore) GetHotWallet(_ context.Context, currency string) (*model.HotWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.state.wallets[currency]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "get hot wallet", "no hot wallet for %s", currency)
	}
	return &w, nil
}

func (s *MemoryStore) ListHotWallets(_ context.Context) ([]*model.HotWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.HotWallet, 0, len(s.state.wallets))
	for _, w := range s.state.wallets {
		w := w
		out = append(out, &w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (s *MemoryStore) ListAuditLogs(_ context.Context, q AuditQuery) ([]*model.AuditLogEntry, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*model.AuditLogEntry
	// newest first
	for i := len(s.state.audit) - 1; i >= 0; i-- {
		e := s.state.audit[i]
		if (q.ActorID == "" || e.ActorID == q.ActorID) &&
			(q.Entity == "" || e.Entity == q.Entity) &&
			(q.EntityID == "" || e.EntityID == q.EntityID) &&
			(q.Action == "" || e.Action == q.Action) {
			all = append(all, &e)
		}
	}
	return paginate(all, q.Page, q.Size), int64(len(all)), nil
}

func matches(q ListQuery, userID, currency, status string) bool {
	return (q.UserID == "" || q.UserID == userID) &&
		(q.Currency == "" || q.Currency == currency) &&
		(q.Status == "" || q.Status == status)
}

func newerFirst(a, b time.Time, aID, bID string) bool {
	if a.Equal(b) {
		return aID > bID
	}
	return a.After(b)
}

func paginate[T any](all []T, page, size int) []T {
	offset, limit := pageWindow(page, size)
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) CreditBalance(_ context.Context, userID, currency string, amount decimal.Decimal) (*model.Balance, error) {
	k := balanceKey{userID, currency}
	b, ok := t.state.balances[k]
	if !ok {
		b = model.Balance{UserID: userID, Currency: currency, Amount: decimal.Zero}
	}
	b.Amount = b.Amount.Add(amount)
	b.UpdatedAt = time.Now().UTC()
	t.state.balances[k] = b
	return &b, nil
}

func (t *memoryTx) DebitBalance(_ context.Context, userID, currency string, amount decimal.Decimal) (*model.Balance, error) {
	k := balanceKey{userID, currency}
	b, ok := t.state.balances[k]
	if !ok || b.Amount.LessThan(amount) {
		return nil, apperrors.Newf(apperrors.KindInsufficientFunds, "debit balance", "%s balance below %s", currency, amount)
	}
	b.Amount = b.Amount.Sub(amount)
	b.UpdatedAt = time.Now().UTC()
	t.state.balances[k] = b
	return &b, nil
}

func (t *memoryTx) CreateDeposit(_ context.Context, d *model.DepositRequest) error {
	if _, ok := t.state.deposits[d.ID]; ok {
		return apperrors.Newf(apperrors.KindInternal, "create deposit", "duplicate id %s", d.ID)
	}
	t.state.deposits[d.ID] = *d
	return nil
}

func (t *memoryTx) LockDeposit(_ context.Context, id string) (*model.DepositRequest, error) {
	d, ok := t.state.deposits[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "get deposit", "deposit %s not found", id)
	}
	return &d, nil
}

// UpdateDeposit enforces the same one-approved-deposit-per-transaction rule
// as the database index.
func (t *memoryTx) UpdateDeposit(ctx context.Context, d *model.DepositRequest) error {
	if _, ok := t.state.deposits[d.ID]; !ok {
		return apperrors.Newf(apperrors.KindNotFound, "update deposit", "deposit %s not found", d.ID)
	}
	if d.Status == model.DepositApproved && d.ClaimedTxHash != nil {
		if other, err := t.FindApprovedDepositByTxHash(ctx, d.Currency, *d.ClaimedTxHash); err == nil && other.ID != d.ID {
			return apperrors.Newf(apperrors.KindInvalidInput, "update deposit", "transaction %s is already credited", strings.ToLower(*d.ClaimedTxHash))
		}
	}
	t.state.deposits[d.ID] = *d
	return nil
}

func (t *memoryTx) FindApprovedDepositByTxHash(_ context.Context, currency, txHash string) (*model.DepositRequest, error) {
	for _, d := range t.state.deposits {
		if d.Status == model.DepositApproved && d.Currency == currency &&
			d.ClaimedTxHash != nil && strings.EqualFold(*d.ClaimedTxHash, txHash) {
			return &d, nil
		}
	}
	return nil, apperrors.Newf(apperrors.KindNotFound, "find deposit by tx hash", "no approved deposit for %s", txHash)
}

func (t *memoryTx) CreateWithdrawal(_ context.Context, w *model.WithdrawalRequest) error {
	if _, ok := t.state.withdrawals[w.ID]; ok {
		return apperrors.Newf(apperrors.KindInternal, "create withdrawal", "duplicate id %s", w.ID)
	}
	t.state.withdrawals[w.ID] = *w
	return nil
}

func (t *memoryTx) LockWithdrawal(_ context.Context, id string) (*model.WithdrawalRequest, error) {
	w, ok := t.state.withdrawals[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "get withdrawal", "withdrawal %s not found", id)
	}
	return &w, nil
}

func (t *memoryTx) UpdateWithdrawal(_ context.Context, w *model.WithdrawalRequest) error {
	if _, ok := t.state.withdrawals[w.ID]; !ok {
		return apperrors.Newf(apperrors.KindNotFound, "update withdrawal", "withdrawal %s not found", w.ID)
	}
	t.state.withdrawals[w.ID] = *w
	return nil
}

func (t *memoryTx) LockHotWallet(_ context.Context, currency string) (*model.HotWallet, error) {
	w, ok := t.state.wallets[currency]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "get hot wallet", "no hot wallet for %s", currency)
	}
	return &w, nil
}

func (t *memoryTx) UpsertHotWallet(_ context.Context, w *model.HotWallet) (*model.HotWallet, error) {
	row := *w
	if prev, ok := t.state.wallets[w.Currency]; ok {
		row.ID = prev.ID
	}
	t.state.wallets[w.Currency] = row
	return &row, nil
}

func (t *memoryTx) DeleteHotWallet(_ context.Context, id string) (*model.HotWallet, error) {
	for cur, w := range t.state.wallets {
		if w.ID == id {
			delete(t.state.wallets, cur)
			return &w, nil
		}
	}
	return nil, apperrors.Newf(apperrors.KindNotFound, "delete hot wallet", "hot wallet %s not found", id)
}

func (t *memoryTx) AppendAudit(_ context.Context, e *model.AuditLogEntry) error {
	t.state.audit = append(t.state.audit, *e)
	return nil
}
