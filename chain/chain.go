package chain

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

type VerifyRequest struct {
	TxHash          string          `json:"tx_hash"`
	ExpectedAddress string          `json:"expected_address"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

type VerifyResult struct {
	IsValid       bool   `json:"is_valid"`
	Confirmed     bool   `json:"confirmed"`
	Confirmations uint64 `json:"confirmations"`
	Error         string `json:"error,omitempty"`
}

// Verifier checks a claimed on-chain transfer. A returned error means the
// check could not be performed; a negative finding is reported in VerifyResult.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

type SendRequest struct {
	WithdrawalID string          `json:"withdrawal_id"`
	Source       string          `json:"source"`
	Destination  string          `json:"destination"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

type SendResult struct {
	Success   bool   `json:"success"`
	TxHash    string `json:"tx_hash,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable"`
}

// Executor broadcasts a payout. Callers treat both a returned error and
// Success=false as a failed execution.
type Executor interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

var retryableMarkers = []string{
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
	"transaction underpriced",
	"max fee per gas less than block base fee",
	"insufficient funds for gas",
	"intrinsic gas too low",
	"connection refused",
	"connection reset",
	"timeout",
	"429",
	"502",
	"503",
}

// IsRetryable classifies network, nonce, gas and timeout failures as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range retryableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func failed(err error) SendResult {
	return SendResult{Success: false, Error: err.Error(), Retryable: IsRetryable(err)}
}
