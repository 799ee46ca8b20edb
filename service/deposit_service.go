package service

import (
	"context"
	"time"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/chain"
	"github.com/custody_settlement/logging"
	"github.com/custody_settlement/model"
	"github.com/custody_settlement/notify"
	"github.com/custody_settlement/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// EventPublisher receives notifications after a transition has committed.
type EventPublisher interface {
	Dispatch(evt notify.Event)
}

type DepositService struct {
	store         repository.Store
	ledger        *LedgerService
	audit         *AuditService
	wallets       *WalletService
	verifier      chain.Verifier
	events        EventPublisher
	verifyTimeout time.Duration
	log           *logging.Logger
}

func NewDepositService(store repository.Store, ledger *LedgerService, audit *AuditService, wallets *WalletService,
	verifier chain.Verifier, events EventPublisher, verifyTimeout time.Duration, log *logging.Logger) *DepositService {
	return &DepositService{
		store:         store,
		ledger:        ledger,
		audit:         audit,
		wallets:       wallets,
		verifier:      verifier,
		events:        events,
		verifyTimeout: verifyTimeout,
		log:           log,
	}
}

type SubmitDepositInput struct {
	Currency string
	Amount   decimal.Decimal
	TxHash   *string
}

// SubmitDeposit records a claim. Nothing is credited until review.
func (s *DepositService) SubmitDeposit(ctx context.Context, actor model.Principal, in SubmitDepositInput) (*model.DepositRequest, error) {
	const op = "submit deposit"
	if err := requireUser(actor, op); err != nil {
		return nil, err
	}
	cp, err := s.ledger.ValidateAmount(op, in.Currency, in.Amount)
	if err != nil {
		return nil, err
	}

	d := &model.DepositRequest{
		ID:            uuid.NewString(),
		UserID:        actor.UserID,
		Currency:      cp.Symbol,
		ClaimedAmount: in.Amount,
		ClaimedTxHash: trimmed(in.TxHash),
		Status:        model.DepositPending,
		CreatedAt:     time.Now().UTC(),
	}
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := refuseCredited(ctx, tx, op, d); err != nil {
			return err
		}
		if err := tx.CreateDeposit(ctx, d); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, actor.UserID, ActionDepositSubmit, model.EntityDeposit, d.ID, model.Metadata{
			"currency": d.Currency,
			"amount":   d.ClaimedAmount.String(),
			"tx_hash":  strOrEmpty(d.ClaimedTxHash),
		})
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

type ReviewInput struct {
	Decision string
	Note     *string
	TxHash   *string
}

// ReviewDeposit approves (credits) or rejects a pending deposit. Only the
// first review of a request can succeed.
func (s *DepositService) ReviewDeposit(ctx context.Context, actor model.Principal, depositID string, in ReviewInput) (*model.DepositRequest, error) {
	const op = "review deposit"
	if err := requireAdmin(actor, op); err != nil {
		return nil, err
	}
	decision := model.DepositStatus(in.Decision)
	if decision != model.DepositApproved && decision != model.DepositRejected {
		return nil, apperrors.Newf(apperrors.KindInvalidInput, op, "decision must be approved or rejected, got %q", in.Decision)
	}
	if err := checkID(op, depositID); err != nil {
		return nil, err
	}

	var d *model.DepositRequest
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		d, err = tx.LockDeposit(ctx, depositID)
		if err != nil {
			return err
		}
		if d.Status != model.DepositPending {
			return apperrors.Newf(apperrors.KindAlreadyReviewed, op, "deposit %s is already %s", d.ID, d.Status)
		}

		now := time.Now().UTC()
		reviewer := actor.UserID
		d.Status = decision
		d.ReviewedAt = &now
		d.ReviewedBy = &reviewer
		d.AdminNote = trimmed(in.Note)
		if h := trimmed(in.TxHash); h != nil {
			d.ClaimedTxHash = h
		}

		action := ActionDepositReject
		meta := model.Metadata{"currency": d.Currency, "amount": d.ClaimedAmount.String(), "note": strOrEmpty(d.AdminNote)}
		if decision == model.DepositApproved {
			action = ActionDepositApprove
			if err := refuseCredited(ctx, tx, op, d); err != nil {
				return err
			}
			bal, err := s.ledger.Credit(ctx, tx, d.UserID, d.Currency, d.ClaimedAmount)
			if err != nil {
				return err
			}
			meta["tx_hash"] = strOrEmpty(d.ClaimedTxHash)
			meta["balance"] = bal.Amount.String()
		}
		if err := tx.UpdateDeposit(ctx, d); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, actor.UserID, action, model.EntityDeposit, d.ID, meta)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"deposit_id": d.ID,
		"admin_id":   actor.UserID,
		"status":     d.Status,
		"amount":     d.ClaimedAmount.String(),
		"currency":   d.Currency,
	}).Info("deposit reviewed")

	evt := notify.EventDepositRejected
	if d.Status == model.DepositApproved {
		evt = notify.EventDepositApproved
	}
	s.events.Dispatch(depositEvent(evt, d))
	return d, nil
}

// refuseCredited fails with INVALID_INPUT when another approved deposit
// already credited d's transaction.
func refuseCredited(ctx context.Context, tx repository.Tx, op string, d *model.DepositRequest) error {
	other, err := creditedBy(ctx, tx, d)
	if err != nil {
		return err
	}
	if other != nil {
		return apperrors.Newf(apperrors.KindInvalidInput, op, "transaction %s was already credited by deposit %s", *d.ClaimedTxHash, other.ID)
	}
	return nil
}

func creditedBy(ctx context.Context, tx repository.Tx, d *model.DepositRequest) (*model.DepositRequest, error) {
	if d.ClaimedTxHash == nil {
		return nil, nil
	}
	other, err := tx.FindApprovedDepositByTxHash(ctx, d.Currency, *d.ClaimedTxHash)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if other.ID == d.ID {
		return nil, nil
	}
	return other, nil
}

type DepositVerification struct {
	DepositID       string `json:"deposit_id"`
	TxHash          string `json:"tx_hash"`
	ExpectedAddress string `json:"expected_address"`
	IsValid         bool   `json:"is_valid"`
	Confirmed       bool   `json:"confirmed"`
	Confirmations   uint64 `json:"confirmations"`
	Error           string `json:"error,omitempty"`
	// CreditedBy is set when another deposit already credited this transaction.
	CreditedBy string `json:"credited_by,omitempty"`
}

// VerifyDeposit asks the chain whether the claimed transfer reached the hot
// wallet. The result is advice for the reviewing admin; the deposit is not changed.
func (s *DepositService) VerifyDeposit(ctx context.Context, actor model.Principal, depositID string, txHash *string) (*DepositVerification, error) {
	const op = "verify deposit"
	if err := requireAdmin(actor, op); err != nil {
		return nil, err
	}
	if err := checkID(op, depositID); err != nil {
		return nil, err
	}
	d, err := s.store.GetDeposit(ctx, depositID)
	if err != nil {
		return nil, err
	}
	hash := trimmed(txHash)
	if hash == nil {
		hash = d.ClaimedTxHash
	}
	if hash == nil {
		return nil, apperrors.New(apperrors.KindMissingTxHash, op, "no transaction hash supplied or claimed")
	}
	hw, err := s.wallets.activeHotWallet(ctx, op, d.Currency)
	if err != nil {
		return nil, err
	}

	vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()
	res, err := s.verifier.Verify(vctx, chain.VerifyRequest{
		TxHash:          *hash,
		ExpectedAddress: hw.Address,
		Amount:          d.ClaimedAmount,
		Currency:        d.Currency,
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{"deposit_id": d.ID, "tx_hash": *hash}).WithError(err).Warn("deposit verification failed")
		return nil, apperrors.Wrap(apperrors.KindExternalService, op, err)
	}

	out := &DepositVerification{
		DepositID:       d.ID,
		TxHash:          *hash,
		ExpectedAddress: hw.Address,
		IsValid:         res.IsValid,
		Confirmed:       res.Confirmed,
		Confirmations:   res.Confirmations,
		Error:           res.Error,
	}
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		claim := *d
		claim.ClaimedTxHash = hash
		other, err := creditedBy(ctx, tx, &claim)
		if err != nil {
			return err
		}
		if other != nil {
			out.IsValid = false
			out.CreditedBy = other.ID
			out.Error = "transaction already credited by deposit " + other.ID
		}
		return s.audit.Record(ctx, tx, actor.UserID, ActionDepositVerify, model.EntityDeposit, d.ID, model.Metadata{
			"tx_hash":       out.TxHash,
			"address":       out.ExpectedAddress,
			"is_valid":      out.IsValid,
			"confirmed":     out.Confirmed,
			"confirmations": out.Confirmations,
			"error":         out.Error,
			"credited_by":   out.CreditedBy,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DepositService) GetDeposit(ctx context.Context, actor model.Principal, depositID string) (*model.DepositRequest, error) {
	const op = "get deposit"
	if err := requireUser(actor, op); err != nil {
		return nil, err
	}
	if err := checkID(op, depositID); err != nil {
		return nil, err
	}
	d, err := s.store.GetDeposit(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, d.UserID) {
		return nil, apperrors.Newf(apperrors.KindNotFound, op, "deposit %s not found", depositID)
	}
	return d, nil
}

// ListDeposits scopes non-admins to their own requests.
func (s *DepositService) ListDeposits(ctx context.Context, actor model.Principal, q repository.ListQuery) ([]*model.DepositRequest, int64, error) {
	if err := requireUser(actor, "list deposits"); err != nil {
		return nil, 0, err
	}
	if !actor.IsAdmin() {
		q.UserID = actor.UserID
	}
	if q.Currency != "" {
		if cp, ok := s.ledger.policy.Currency(q.Currency); ok {
			q.Currency = cp.Symbol
		}
	}
	return s.store.ListDeposits(ctx, q)
}

func depositEvent(kind string, d *model.DepositRequest) notify.Event {
	return notify.Event{
		Type:     kind,
		UserID:   d.UserID,
		Entity:   model.EntityDeposit,
		EntityID: d.ID,
		Currency: d.Currency,
		Amount:   d.ClaimedAmount.String(),
		Status:   string(d.Status),
	}
}
