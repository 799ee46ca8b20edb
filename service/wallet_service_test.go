package service

import (
	"context"
	"testing"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/repository"
)

func TestUpsertHotWalletReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.hotWallet(t, "usdt", hotWalletETH)
	if first.Currency != "USDT" {
		t.Fatalf("currency = %s", first.Currency)
	}
	second := f.hotWallet(t, "USDT", userAddress)
	if second.ID != first.ID {
		t.Fatalf("upsert must keep the registry entry, %s != %s", second.ID, first.ID)
	}
	if second.Address != userAddress {
		t.Fatalf("address = %s", second.Address)
	}

	list, err := f.wallets.ListHotWallets(ctx, admin)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %d", err, len(list))
	}

	logs, _, _ := f.audit.List(ctx, admin, repository.AuditQuery{EntityID: first.ID, Action: ActionHotWalletUpsert})
	if len(logs) != 2 {
		t.Fatalf("expected two upsert entries, got %d", len(logs))
	}
	if logs[0].Metadata["previous_address"] != hotWalletETH {
		t.Fatalf("previous_address = %v", logs[0].Metadata["previous_address"])
	}
	if _, ok := logs[1].Metadata["previous_address"]; ok {
		t.Fatalf("first upsert has no previous address")
	}
}

func TestUpsertHotWalletValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wallets.UpsertHotWallet(ctx, alice, UpsertHotWalletInput{Currency: "ETH", Address: hotWalletETH})
	assertKind(t, err, apperrors.KindNotAuthorized)
	_, err = f.wallets.UpsertHotWallet(ctx, admin, UpsertHotWalletInput{Currency: "ETH", Address: "not-an-address"})
	assertKind(t, err, apperrors.KindInvalidInput)
	_, err = f.wallets.UpsertHotWallet(ctx, admin, UpsertHotWalletInput{Currency: "BTC", Address: hotWalletETH})
	assertKind(t, err, apperrors.KindInvalidInput)
	_, err = f.wallets.UpsertHotWallet(ctx, admin, UpsertHotWalletInput{Currency: "DOGE", Address: hotWalletETH})
	assertKind(t, err, apperrors.KindInvalidInput)
	_, err = f.wallets.ListHotWallets(ctx, bob)
	assertKind(t, err, apperrors.KindNotAuthorized)
	err = f.wallets.DeleteHotWallet(ctx, bob, "3f0e5c36-2a5f-4a8f-8d66-8d7c3b1f4e20")
	assertKind(t, err, apperrors.KindNotAuthorized)
	err = f.wallets.DeleteHotWallet(ctx, admin, "3f0e5c36-2a5f-4a8f-8d66-8d7c3b1f4e20")
	assertKind(t, err, apperrors.KindNotFound)
}

func TestHotWalletCacheFollowsMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wallets.GetHotWallet(ctx, "ETH")
	assertKind(t, err, apperrors.KindNotFound)

	hw := f.hotWallet(t, "ETH", hotWalletETH)
	got, err := f.wallets.GetHotWallet(ctx, "eth")
	if err != nil || got.Address != hotWalletETH {
		t.Fatalf("get: %+v %v", got, err)
	}

	f.hotWallet(t, "ETH", userAddress)
	got, _ = f.wallets.GetHotWallet(ctx, "ETH")
	if got.Address != userAddress {
		t.Fatalf("stale cache after upsert: %s", got.Address)
	}

	if err := f.wallets.DeleteHotWallet(ctx, admin, hw.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = f.wallets.GetHotWallet(ctx, "ETH")
	assertKind(t, err, apperrors.KindNotFound)
	if got := f.auditActions(t, hw.ID); !equalStrings(got, []string{ActionHotWalletUpsert, ActionHotWalletUpsert, ActionHotWalletDelete}) {
		t.Fatalf("audit trail = %v", got)
	}
}
