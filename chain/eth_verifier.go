package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/custody_settlement/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type EthVerifier struct {
	backend EthBackend
	policy  *config.Policy
}

func NewEthVerifier(backend EthBackend, policy *config.Policy) *EthVerifier {
	return &EthVerifier{backend: backend, policy: policy}
}

func isTxHash(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

func (v *EthVerifier) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	cp, ok := v.policy.Currency(req.Currency)
	if !ok || cp.Chain != config.ChainEthereum {
		return VerifyResult{}, fmt.Errorf("%w: %s on ethereum verifier", ErrUnsupportedCurrency, req.Currency)
	}
	if !isTxHash(req.TxHash) {
		return VerifyResult{Error: "malformed transaction hash"}, nil
	}
	if !common.IsHexAddress(req.ExpectedAddress) {
		return VerifyResult{Error: "expected address is not an ethereum address"}, nil
	}
	want, err := ToBaseUnits(req.Amount, cp.Decimals)
	if err != nil {
		return VerifyResult{Error: err.Error()}, nil
	}
	hash := common.HexToHash(req.TxHash)
	expected := common.HexToAddress(req.ExpectedAddress)

	receipt, err := v.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return VerifyResult{Error: "transaction not found or not mined"}, nil
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("transaction receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return VerifyResult{Error: "transaction reverted"}, nil
	}

	var mismatch string
	if cp.Contract == "" {
		mismatch, err = v.checkNative(ctx, hash, expected, want)
		if err != nil {
			return VerifyResult{}, err
		}
	} else {
		mismatch = checkTokenTransfer(receipt.Logs, common.HexToAddress(cp.Contract), expected, want)
	}

	latest, err := v.backend.BlockNumber(ctx)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("block number: %w", err)
	}
	var confirmations uint64
	if receipt.BlockNumber != nil && latest >= receipt.BlockNumber.Uint64() {
		confirmations = latest - receipt.BlockNumber.Uint64() + 1
	}

	return VerifyResult{
		IsValid:       mismatch == "",
		Confirmed:     confirmations >= cp.Confirmations,
		Confirmations: confirmations,
		Error:         mismatch,
	}, nil
}

func (v *EthVerifier) checkNative(ctx context.Context, hash common.Hash, expected common.Address, want *big.Int) (string, error) {
	tx, _, err := v.backend.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return "transaction not found", nil
	}
	if err != nil {
		return "", fmt.Errorf("transaction by hash: %w", err)
	}
	if tx.To() == nil || *tx.To() != expected {
		return "destination does not match hot wallet", nil
	}
	if tx.Value().Cmp(want) != 0 {
		return fmt.Sprintf("value %s does not match expected %s", tx.Value(), want), nil
	}
	return "", nil
}

func checkTokenTransfer(logs []*types.Log, contract, expected common.Address, want *big.Int) string {
	topic := transferTopic()
	seen := false
	for _, l := range logs {
		if l.Address != contract || len(l.Topics) != 3 || l.Topics[0] != topic {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != expected {
			continue
		}
		seen = true
		out, err := erc20ABI.Unpack("Transfer", l.Data)
		if err != nil || len(out) != 1 {
			continue
		}
		if v, ok := out[0].(*big.Int); ok && v.Cmp(want) == 0 {
			return ""
		}
	}
	if seen {
		return "token transfer amount does not match"
	}
	return "no token transfer to hot wallet"
}
