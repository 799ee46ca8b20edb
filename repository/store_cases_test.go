package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/model"
	"github.com/google/uuid"
)

// Cases shared by every Store implementation. IDs are UUIDs so the same
// cases run against the postgres schema.

func strp(s string) *string { return &s }

func createDeposit(t *testing.T, s Store, currency, hash string) *model.DepositRequest {
	t.Helper()
	ctx := context.Background()
	d := &model.DepositRequest{
		ID:            uuid.NewString(),
		UserID:        "u-" + uuid.NewString()[:8],
		Currency:      currency,
		ClaimedAmount: dec("1"),
		ClaimedTxHash: strp(hash),
		Status:        model.DepositPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.WithTx(ctx, func(tx Tx) error { return tx.CreateDeposit(ctx, d) }); err != nil {
		t.Fatalf("create deposit: %v", err)
	}
	return d
}

func approveDeposit(ctx context.Context, s Store, id string) error {
	return s.WithTx(ctx, func(tx Tx) error {
		d, err := tx.LockDeposit(ctx, id)
		if err != nil {
			return err
		}
		d.Status = model.DepositApproved
		return tx.UpdateDeposit(ctx, d)
	})
}

func caseApprovedTxHashIsUnique(t *testing.T, s Store) {
	ctx := context.Background()
	first := createDeposit(t, s, "ETH", "0xABCDEF")
	second := createDeposit(t, s, "ETH", "0xabcdef")
	otherChain := createDeposit(t, s, "BTC", "0xabcdef")

	err := s.WithTx(ctx, func(tx Tx) error {
		_, err := tx.FindApprovedDepositByTxHash(ctx, "ETH", "0xabcdef")
		return err
	})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("pending deposits must not count as credited, got %v", err)
	}

	if err := approveDeposit(ctx, s, first.ID); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	var found *model.DepositRequest
	err = s.WithTx(ctx, func(tx Tx) error {
		var err error
		found, err = tx.FindApprovedDepositByTxHash(ctx, "ETH", "0xAbCdEf")
		return err
	})
	if err != nil || found.ID != first.ID {
		t.Fatalf("lookup = %v %v, want %s", found, err, first.ID)
	}

	if err := approveDeposit(ctx, s, second.ID); !apperrors.Is(err, apperrors.KindInvalidInput) {
		t.Fatalf("second approval of the same hash: got %v, want INVALID_INPUT", err)
	}
	got, err := s.GetDeposit(ctx, second.ID)
	if err != nil || got.Status != model.DepositPending {
		t.Fatalf("rejected approval must roll back, got %+v %v", got, err)
	}
	if err := approveDeposit(ctx, s, otherChain.ID); err != nil {
		t.Fatalf("same hash on another currency: %v", err)
	}
}

func caseConcurrentDebitsNeverOverdraw(t *testing.T, s Store) {
	ctx := context.Background()
	user := "u-" + uuid.NewString()[:8]
	if err := s.WithTx(ctx, func(tx Tx) error {
		_, err := tx.CreditBalance(ctx, user, "USDT", dec("100"))
		return err
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, short := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(tx Tx) error {
				_, err := tx.DebitBalance(ctx, user, "USDT", dec("30"))
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperrors.ErrInsufficientFunds):
				short++
			default:
				t.Errorf("debit: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 3 || short != 7 {
		t.Fatalf("debits ok=%d short=%d, want 3 and 7", ok, short)
	}
	bal, _ := s.GetBalance(ctx, user, "USDT")
	if !bal.Amount.Equal(dec("10")) {
		t.Fatalf("balance = %s, want 10", bal.Amount)
	}
}

func caseRollsBack(t *testing.T, s Store) {
	ctx := context.Background()
	user := "u-" + uuid.NewString()[:8]
	id := uuid.NewString()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.CreditBalance(ctx, user, "BTC", dec("2")); err != nil {
			return err
		}
		if err := tx.CreateDeposit(ctx, &model.DepositRequest{
			ID: id, UserID: user, Currency: "BTC", ClaimedAmount: dec("2"),
			Status: model.DepositPending, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	bal, _ := s.GetBalance(ctx, user, "BTC")
	if !bal.Amount.IsZero() {
		t.Fatalf("credit leaked out of rolled back tx: %s", bal.Amount)
	}
	if _, err := s.GetDeposit(ctx, id); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("deposit leaked out of rolled back tx: %v", err)
	}
}

func caseWithdrawalExecutionMarker(t *testing.T, s Store) {
	ctx := context.Background()
	w := &model.WithdrawalRequest{
		ID:                 uuid.NewString(),
		UserID:             "u-" + uuid.NewString()[:8],
		Currency:           "ETH",
		RequestedAmount:    dec("1"),
		RequestedFee:       dec("0.01"),
		FinalAmount:        dec("0.99"),
		DestinationAddress: "0x00000000000000000000000000000000000000aa",
		Status:             model.WithdrawalApproved,
		CreatedAt:          time.Now().UTC(),
	}
	started := time.Now().UTC().Truncate(time.Microsecond)
	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.CreateWithdrawal(ctx, w); err != nil {
			return err
		}
		locked, err := tx.LockWithdrawal(ctx, w.ID)
		if err != nil {
			return err
		}
		locked.ExecutionStartedAt = &started
		return tx.UpdateWithdrawal(ctx, locked)
	})
	if err != nil {
		t.Fatalf("mark execution: %v", err)
	}
	got, err := s.GetWithdrawal(ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ExecutionStartedAt == nil || !got.ExecutionStartedAt.Equal(started) {
		t.Fatalf("execution marker = %v, want %v", got.ExecutionStartedAt, started)
	}
	if !got.FinalAmount.Equal(dec("0.99")) {
		t.Fatalf("final amount = %s", got.FinalAmount)
	}
}

func caseHotWalletUpsertKeepsID(t *testing.T, s Store) {
	ctx := context.Background()
	var first *model.HotWallet
	err := s.WithTx(ctx, func(tx Tx) error {
		var err error
		first, err = tx.UpsertHotWallet(ctx, &model.HotWallet{ID: uuid.NewString(), Currency: "ETH", Address: "0xa", UpdatedAt: time.Now().UTC()})
		return err
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	err = s.WithTx(ctx, func(tx Tx) error {
		_, err := tx.UpsertHotWallet(ctx, &model.HotWallet{ID: uuid.NewString(), Currency: "ETH", Address: "0xb", UpdatedAt: time.Now().UTC()})
		return err
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err := s.GetHotWallet(ctx, "ETH")
	if err != nil {
		t.Fatalf("GetHotWallet: %v", err)
	}
	if got.ID != first.ID || got.Address != "0xb" {
		t.Fatalf("unexpected wallet %+v, want id %s", got, first.ID)
	}
}
