package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/chain"
	"github.com/custody_settlement/lock"
	"github.com/custody_settlement/logging"
	"github.com/custody_settlement/model"
	"github.com/custody_settlement/notify"
	"github.com/custody_settlement/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type WithdrawServiceConfig struct {
	ExecutorTimeout time.Duration
	// ExecutionLockTTL must outlive ExecutorTimeout.
	ExecutionLockTTL time.Duration
	// RecordAttempts and RecordBackoff bound how hard an execution outcome
	// is retried into the store after the executor returned.
	RecordAttempts int
	RecordBackoff  time.Duration
}

const (
	defaultRecordAttempts = 3
	defaultRecordBackoff  = 200 * time.Millisecond
)

type WithdrawService struct {
	store     repository.Store
	ledger    *LedgerService
	audit     *AuditService
	wallets   *WalletService
	addresses AddressValidator
	executor  chain.Executor
	locker    lock.Locker
	events    EventPublisher
	cfg       WithdrawServiceConfig
	log       *logging.Logger
}

func NewWithdrawService(store repository.Store, ledger *LedgerService, audit *AuditService, wallets *WalletService,
	addresses AddressValidator, executor chain.Executor, locker lock.Locker, events EventPublisher,
	cfg WithdrawServiceConfig, log *logging.Logger) *WithdrawService {
	if cfg.RecordAttempts <= 0 {
		cfg.RecordAttempts = defaultRecordAttempts
	}
	if cfg.RecordBackoff <= 0 {
		cfg.RecordBackoff = defaultRecordBackoff
	}
	return &WithdrawService{
		store:     store,
		ledger:    ledger,
		audit:     audit,
		wallets:   wallets,
		addresses: addresses,
		executor:  executor,
		locker:    locker,
		events:    events,
		cfg:       cfg,
		log:       log,
	}
}

type FeeQuote struct {
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	FinalAmount decimal.Decimal `json:"final_amount"`
}

// QuoteFee fails with INVALID_AMOUNT when the fee would consume the whole amount.
func (s *WithdrawService) QuoteFee(currency string, amount decimal.Decimal) (*FeeQuote, error) {
	const op = "quote fee"
	cp, err := s.ledger.ValidateAmount(op, currency, amount)
	if err != nil {
		return nil, err
	}
	fee := cp.FeeFor(amount)
	if amount.LessThanOrEqual(fee) {
		return nil, apperrors.Newf(apperrors.KindInvalidAmount, op, "amount %s does not cover fee %s", amount, fee)
	}
	return &FeeQuote{Currency: cp.Symbol, Amount: amount, Fee: fee, FinalAmount: amount.Sub(fee)}, nil
}

type SubmitWithdrawalInput struct {
	Currency           string
	Amount             decimal.Decimal
	DestinationAddress string
	Note               *string
}

// SubmitWithdrawal reserves the full amount and opens a pending request in
// one transaction.
func (s *WithdrawService) SubmitWithdrawal(ctx context.Context, actor model.Principal, in SubmitWithdrawalInput) (*model.WithdrawalRequest, error) {
	const op = "submit withdrawal"
	if err := requireUser(actor, op); err != nil {
		return nil, err
	}
	quote, err := s.QuoteFee(in.Currency, in.Amount)
	if err != nil {
		return nil, err
	}
	cp, _ := s.ledger.policy.Currency(quote.Currency)
	dest := strings.TrimSpace(in.DestinationAddress)
	if err := s.addresses.Validate(cp.Chain, dest); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, op, err)
	}

	w := &model.WithdrawalRequest{
		ID:                 uuid.NewString(),
		UserID:             actor.UserID,
		Currency:           quote.Currency,
		RequestedAmount:    quote.Amount,
		RequestedFee:       quote.Fee,
		FinalAmount:        quote.FinalAmount,
		DestinationAddress: dest,
		UserNote:           trimmed(in.Note),
		Status:             model.WithdrawalPending,
		CreatedAt:          time.Now().UTC(),
	}
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		bal, err := s.ledger.Debit(ctx, tx, w.UserID, w.Currency, w.RequestedAmount)
		if err != nil {
			return err
		}
		if err := tx.CreateWithdrawal(ctx, w); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, actor.UserID, ActionWithdrawalSubmit, model.EntityWithdrawal, w.ID, model.Metadata{
			"currency":     w.Currency,
			"amount":       w.RequestedAmount.String(),
			"fee":          w.RequestedFee.String(),
			"final_amount": w.FinalAmount.String(),
			"destination":  w.DestinationAddress,
			"balance":      bal.Amount.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"withdrawal_id": w.ID,
		"user_id":       w.UserID,
		"currency":      w.Currency,
		"amount":        w.RequestedAmount.String(),
	}).Info("withdrawal submitted")
	return w, nil
}

// allowedFrom lists, for each decision, the only status it may leave.
var allowedFrom = map[model.WithdrawalStatus]model.WithdrawalStatus{
	model.WithdrawalApproved:  model.WithdrawalPending,
	model.WithdrawalRejected:  model.WithdrawalPending,
	model.WithdrawalCompleted: model.WithdrawalApproved,
	model.WithdrawalFailed:    model.WithdrawalApproved,
}

func executionLockKey(id string) string {
	return "withdrawal:exec:" + id
}

// ReviewWithdrawal applies an admin decision. Rejecting or failing releases
// the reservation. Completing and failing hold the execution lock so they
// cannot race an in-flight payout.
func (s *WithdrawService) ReviewWithdrawal(ctx context.Context, actor model.Principal, withdrawalID string, in ReviewInput) (*model.WithdrawalRequest, error) {
	const op = "review withdrawal"
	if err := requireAdmin(actor, op); err != nil {
		return nil, err
	}
	decision := model.WithdrawalStatus(in.Decision)
	from, ok := allowedFrom[decision]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindInvalidInput, op, "unknown decision %q", in.Decision)
	}
	if err := checkID(op, withdrawalID); err != nil {
		return nil, err
	}

	if decision == model.WithdrawalCompleted || decision == model.WithdrawalFailed {
		release, err := s.acquireExecution(ctx, op, withdrawalID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	var w *model.WithdrawalRequest
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		w, err = tx.LockWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if w.Status != from {
			return apperrors.Newf(apperrors.KindInvalidTransition, op, "cannot move withdrawal from %s to %s", w.Status, decision)
		}
		txHash := trimmed(in.TxHash)
		if decision == model.WithdrawalCompleted && txHash == nil {
			return apperrors.New(apperrors.KindMissingTxHash, op, "completing a withdrawal requires a tx hash")
		}

		prevStatus := w.Status
		now := time.Now().UTC()
		reviewer := actor.UserID
		w.Status = decision
		w.ReviewedAt = &now
		w.ReviewedBy = &reviewer
		if note := trimmed(in.Note); note != nil {
			w.AdminNote = note
		}
		meta := model.Metadata{
			"from":     string(prevStatus),
			"to":       string(decision),
			"currency": w.Currency,
			"note":     strOrEmpty(w.AdminNote),
		}

		switch decision {
		case model.WithdrawalCompleted:
			w.TxHash = txHash
			w.ExecutedAt = &now
			meta["tx_hash"] = *txHash
		case model.WithdrawalRejected, model.WithdrawalFailed:
			if decision == model.WithdrawalFailed {
				reason := "marked failed by admin"
				if w.AdminNote != nil {
					reason = *w.AdminNote
				}
				w.FailureReason = &reason
			}
			bal, err := s.ledger.Credit(ctx, tx, w.UserID, w.Currency, w.RequestedAmount)
			if err != nil {
				return err
			}
			meta["released"] = w.RequestedAmount.String()
			meta["balance"] = bal.Amount.String()
		}

		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, actor.UserID, withdrawalDecisionPrefix+string(decision), model.EntityWithdrawal, w.ID, meta)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"withdrawal_id": w.ID,
		"admin_id":      actor.UserID,
		"status":        w.Status,
	}).Info("withdrawal reviewed")
	s.events.Dispatch(withdrawalEvent("withdrawal."+string(w.Status), w))
	return w, nil
}

// ExecuteWithdrawal pays out an approved request through the executor.
// The request leaves approved only after the executor returns: success
// completes it, any failure marks it failed and releases the reservation.
// On failure the failed request is returned together with an
// EXTERNAL_SERVICE_ERROR. The payout itself is never retried.
//
// An execution marker is committed before the executor is called. A request
// that carries the marker but is still approved has an unknown outcome and
// is refused here until an admin completes or fails it by review.
func (s *WithdrawService) ExecuteWithdrawal(ctx context.Context, actor model.Principal, withdrawalID string) (*model.WithdrawalRequest, error) {
	const op = "execute withdrawal"
	if err := requireAdmin(actor, op); err != nil {
		return nil, err
	}
	if err := checkID(op, withdrawalID); err != nil {
		return nil, err
	}
	release, err := s.acquireExecution(ctx, op, withdrawalID)
	if err != nil {
		return nil, err
	}
	holdLock := false
	defer func() {
		if !holdLock {
			release()
		}
	}()

	w, err := s.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if w.Status != model.WithdrawalApproved {
		return nil, apperrors.Newf(apperrors.KindInvalidState, op, "withdrawal %s is %s, not approved", w.ID, w.Status)
	}
	hw, err := s.wallets.activeHotWallet(ctx, op, w.Currency)
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"withdrawal_id": w.ID,
		"admin_id":      actor.UserID,
		"currency":      w.Currency,
		"amount":        w.FinalAmount.String(),
		"source":        hw.Address,
		"destination":   w.DestinationAddress,
	}
	if err := s.markExecutionStarted(ctx, op, w.ID); err != nil {
		return nil, err
	}
	s.log.WithFields(fields).Info("executing withdrawal")

	// The outcome must be recorded even if the caller goes away mid-call.
	bg := context.WithoutCancel(ctx)
	execCtx, cancel := context.WithTimeout(bg, s.cfg.ExecutorTimeout)
	res, sendErr := s.executor.Send(execCtx, chain.SendRequest{
		WithdrawalID: w.ID,
		Source:       hw.Address,
		Destination:  w.DestinationAddress,
		Amount:       w.FinalAmount,
		Currency:     w.Currency,
	})
	timedOut := errors.Is(execCtx.Err(), context.DeadlineExceeded)
	cancel()

	if sendErr == nil && res.Success && res.TxHash != "" {
		done, err := s.recordWithRetry(fields, "completion", func() (*model.WithdrawalRequest, error) {
			return s.recordExecution(bg, actor, w.ID, hw.Address, res.TxHash)
		})
		if err != nil {
			// The lock expires on its own; the execution marker keeps later
			// attempts out after that.
			holdLock = true
			s.log.WithFields(fields).WithField("tx_hash", res.TxHash).WithError(err).
				Error("payout broadcast but completion was not recorded; manual follow-up required")
			return nil, err
		}
		s.log.WithFields(fields).WithField("tx_hash", res.TxHash).Info("withdrawal completed")
		s.events.Dispatch(withdrawalEvent(notify.EventWithdrawalCompleted, done))
		return done, nil
	}

	reason, retryable := classifyFailure(res, sendErr, timedOut)
	failedReq, err := s.recordWithRetry(fields, "failure", func() (*model.WithdrawalRequest, error) {
		return s.recordFailure(bg, actor, w.ID, hw.Address, reason, retryable)
	})
	if err != nil {
		s.log.WithFields(fields).WithError(err).Error("execution failed and failure was not recorded")
		return nil, err
	}
	s.log.WithFields(fields).WithFields(logrus.Fields{"reason": reason, "retryable": retryable}).Warn("withdrawal execution failed")
	s.events.Dispatch(withdrawalEvent(notify.EventWithdrawalFailed, failedReq))
	return failedReq, apperrors.New(apperrors.KindExternalService, op, reason)
}

func classifyFailure(res chain.SendResult, err error, timedOut bool) (string, bool) {
	switch {
	case timedOut:
		return "executor timed out", true
	case err != nil:
		return err.Error(), chain.IsRetryable(err)
	case res.Success:
		return "executor reported success without a tx hash", false
	case res.Error != "":
		return res.Error, res.Retryable
	}
	return "executor reported failure", res.Retryable
}

// markExecutionStarted commits the execution marker. It refuses requests that
// left approved or already carry a marker from an earlier attempt.
func (s *WithdrawService) markExecutionStarted(ctx context.Context, op, id string) error {
	return s.store.WithTx(ctx, func(tx repository.Tx) error {
		w, err := tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != model.WithdrawalApproved {
			return apperrors.Newf(apperrors.KindInvalidState, op, "withdrawal %s is %s, not approved", w.ID, w.Status)
		}
		if w.ExecutionStartedAt != nil {
			return apperrors.Newf(apperrors.KindInvalidState, op,
				"withdrawal %s was already sent for execution at %s with unknown outcome; complete or fail it by review",
				w.ID, w.ExecutionStartedAt.Format(time.RFC3339))
		}
		now := time.Now().UTC()
		w.ExecutionStartedAt = &now
		return tx.UpdateWithdrawal(ctx, w)
	})
}

// recordWithRetry retries fn while it fails with an internal (store) error,
// doubling the pause between attempts.
func (s *WithdrawService) recordWithRetry(fields logrus.Fields, what string, fn func() (*model.WithdrawalRequest, error)) (*model.WithdrawalRequest, error) {
	backoff := s.cfg.RecordBackoff
	for attempt := 1; ; attempt++ {
		w, err := fn()
		if err == nil || attempt >= s.cfg.RecordAttempts || !apperrors.Is(err, apperrors.KindInternal) {
			return w, err
		}
		s.log.WithFields(fields).WithFields(logrus.Fields{"record": what, "attempt": attempt}).WithError(err).
			Warn("recording execution outcome failed, retrying")
		time.Sleep(backoff)
		backoff *= 2
	}
}

func (s *WithdrawService) recordExecution(ctx context.Context, actor model.Principal, id, source, txHash string) (*model.WithdrawalRequest, error) {
	var w *model.WithdrawalRequest
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		w, err = tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		// An earlier attempt may have committed before its error was reported.
		if w.Status == model.WithdrawalCompleted && w.TxHash != nil && *w.TxHash == txHash {
			return nil
		}
		if w.Status != model.WithdrawalApproved {
			return apperrors.Newf(apperrors.KindInvalidState, "execute withdrawal", "withdrawal %s changed to %s during execution", id, w.Status)
		}
		now := time.Now().UTC()
		w.Status = model.WithdrawalCompleted
		w.TxHash = &txHash
		w.ExecutedAt = &now
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, actor.UserID, ActionWithdrawalExecute, model.EntityWithdrawal, w.ID, model.Metadata{
			"tx_hash":      txHash,
			"source":       source,
			"destination":  w.DestinationAddress,
			"final_amount": w.FinalAmount.String(),
			"currency":     w.Currency,
		})
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *WithdrawService) recordFailure(ctx context.Context, actor model.Principal, id, source, reason string, retryable bool) (*model.WithdrawalRequest, error) {
	var w *model.WithdrawalRequest
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		w, err = tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != model.WithdrawalApproved {
			return apperrors.Newf(apperrors.KindInvalidState, "execute withdrawal", "withdrawal %s changed to %s during execution", id, w.Status)
		}
		now := time.Now().UTC()
		w.Status = model.WithdrawalFailed
		w.FailureReason = &reason
		w.ExecutedAt = &now
		bal, err := s.ledger.Credit(ctx, tx, w.UserID, w.Currency, w.RequestedAmount)
		if err != nil {
			return err
		}
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, actor.UserID, ActionWithdrawalExecFail, model.EntityWithdrawal, w.ID, model.Metadata{
			"reason":    reason,
			"retryable": retryable,
			"source":    source,
			"released":  w.RequestedAmount.String(),
			"balance":   bal.Amount.String(),
			"currency":  w.Currency,
		})
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// acquireExecution fails with INVALID_STATE while another execution or
// manual completion of the same request is in progress.
func (s *WithdrawService) acquireExecution(ctx context.Context, op, id string) (func(), error) {
	rel, err := s.locker.TryAcquire(ctx, executionLockKey(id), s.cfg.ExecutionLockTTL)
	if errors.Is(err, lock.ErrHeld) {
		return nil, apperrors.Newf(apperrors.KindInvalidState, op, "withdrawal %s is already being executed", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, fmt.Errorf("execution lock: %w", err))
	}
	return func() {
		if err := rel(context.WithoutCancel(ctx)); err != nil {
			s.log.WithField("withdrawal_id", id).WithError(err).Warn("release execution lock")
		}
	}, nil
}

func (s *WithdrawService) GetWithdrawal(ctx context.Context, actor model.Principal, withdrawalID string) (*model.WithdrawalRequest, error) {
	const op = "get withdrawal"
	if err := requireUser(actor, op); err != nil {
		return nil, err
	}
	if err := checkID(op, withdrawalID); err != nil {
		return nil, err
	}
	w, err := s.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, w.UserID) {
		return nil, apperrors.Newf(apperrors.KindNotFound, op, "withdrawal %s not found", withdrawalID)
	}
	return w, nil
}

func (s *WithdrawService) ListWithdrawals(ctx context.Context, actor model.Principal, q repository.ListQuery) ([]*model.WithdrawalRequest, int64, error) {
	if err := requireUser(actor, "list withdrawals"); err != nil {
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
	return s.store.ListWithdrawals(ctx, q)
}

func withdrawalEvent(kind string, w *model.WithdrawalRequest) notify.Event {
	evt := notify.Event{
		Type:     kind,
		UserID:   w.UserID,
		Entity:   model.EntityWithdrawal,
		EntityID: w.ID,
		Currency: w.Currency,
		Amount:   w.FinalAmount.String(),
		Status:   string(w.Status),
	}
	if w.TxHash != nil {
		evt.Data = map[string]interface{}{"tx_hash": *w.TxHash}
	}
	if w.FailureReason != nil {
		evt.Data = map[string]interface{}{"reason": *w.FailureReason}
	}
	return evt
}
