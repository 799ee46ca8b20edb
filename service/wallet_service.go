package service

import (
	"context"
	"strings"
	"time"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/logging"
	"github.com/custody_settlement/model"
	"github.com/custody_settlement/repository"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// AddressValidator checks a destination for a chain ("ethereum", "bitcoin").
type AddressValidator interface {
	Validate(chain, address string) error
}

// WalletService is the hot wallet registry: at most one payout address per currency.
type WalletService struct {
	store     repository.Store
	ledger    *LedgerService
	audit     *AuditService
	addresses AddressValidator
	cache     *cache.Cache
	log       *logging.Logger
}

func NewWalletService(store repository.Store, ledger *LedgerService, audit *AuditService, addresses AddressValidator, cacheTTL time.Duration, log *logging.Logger) *WalletService {
	return &WalletService{
		store:     store,
		ledger:    ledger,
		audit:     audit,
		addresses: addresses,
		cache:     cache.New(cacheTTL, 2*cacheTTL),
		log:       log,
	}
}

type UpsertHotWalletInput struct {
	Currency string
	Address  string
	Label    *string
}

func (s *WalletService) UpsertHotWallet(ctx context.Context, actor model.Principal, in UpsertHotWalletInput) (*model.HotWallet, error) {
	const op = "upsert hot wallet"
	if err := requireAdmin(actor, op); err != nil {
		return nil, err
	}
	cp, err := s.ledger.Currency(op, in.Currency)
	if err != nil {
		return nil, err
	}
	address := strings.TrimSpace(in.Address)
	if err := s.addresses.Validate(cp.Chain, address); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, op, err)
	}

	var stored *model.HotWallet
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		prev, err := tx.LockHotWallet(ctx, cp.Symbol)
		if err != nil && !apperrors.Is(err, apperrors.KindNotFound) {
			return err
		}
		stored, err = tx.UpsertHotWallet(ctx, &model.HotWallet{
			ID:        uuid.NewString(),
			Currency:  cp.Symbol,
			Address:   address,
			Label:     trimmed(in.Label),
			UpdatedAt: time.Now().UTC(),
			UpdatedBy: actor.UserID,
		})
		if err != nil {
			return err
		}
		meta := model.Metadata{"currency": cp.Symbol, "address": address, "label": strOrEmpty(stored.Label)}
		if prev != nil {
			meta["previous_address"] = prev.Address
		}
		return s.audit.Record(ctx, tx, actor.UserID, ActionHotWalletUpsert, model.EntityHotWallet, stored.ID, meta)
	})
	if err != nil {
		return nil, err
	}
	s.cache.Flush()

	s.log.WithFields(logrus.Fields{
		"admin_id": actor.UserID,
		"currency": cp.Symbol,
		"address":  address,
	}).Info("hot wallet updated")
	return stored, nil
}

func (s *WalletService) DeleteHotWallet(ctx context.Context, actor model.Principal, walletID string) error {
	const op = "delete hot wallet"
	if err := requireAdmin(actor, op); err != nil {
		return err
	}
	if err := checkID(op, walletID); err != nil {
		return err
	}
	var removed *model.HotWallet
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		removed, err = tx.DeleteHotWallet(ctx, walletID)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, actor.UserID, ActionHotWalletDelete, model.EntityHotWallet, walletID, model.Metadata{
			"currency": removed.Currency,
			"address":  removed.Address,
		})
	})
	if err != nil {
		return err
	}
	s.cache.Flush()

	s.log.WithFields(logrus.Fields{
		"admin_id": actor.UserID,
		"currency": removed.Currency,
	}).Warn("hot wallet removed")
	return nil
}

// GetHotWallet is a cached read for reporting. Execution and verification
// read the store directly.
func (s *WalletService) GetHotWallet(ctx context.Context, currency string) (*model.HotWallet, error) {
	cp, err := s.ledger.Currency("get hot wallet", currency)
	if err != nil {
		return nil, err
	}
	if v, ok := s.cache.Get(cp.Symbol); ok {
		w := *v.(*model.HotWallet)
		return &w, nil
	}
	w, err := s.store.GetHotWallet(ctx, cp.Symbol)
	if err != nil {
		return nil, err
	}
	cached := *w
	s.cache.SetDefault(cp.Symbol, &cached)
	return w, nil
}

func (s *WalletService) ListHotWallets(ctx context.Context, actor model.Principal) ([]*model.HotWallet, error) {
	if err := requireAdmin(actor, "list hot wallets"); err != nil {
		return nil, err
	}
	return s.store.ListHotWallets(ctx)
}

// activeHotWallet bypasses the cache.
func (s *WalletService) activeHotWallet(ctx context.Context, op, currency string) (*model.HotWallet, error) {
	w, err := s.store.GetHotWallet(ctx, currency)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return nil, apperrors.Newf(apperrors.KindNoHotWallet, op, "no hot wallet configured for %s", currency)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, err)
	}
	return w, nil
}
