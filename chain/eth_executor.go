package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/custody_settlement/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	nativeTransferGas = 21000
	gasBufferPercent  = 20
)

// EthExecutor signs EIP-1559 payouts with keys from the keyring and
// broadcasts them. Native ETH and ERC-20 transfer are supported.
type EthExecutor struct {
	backend EthBackend
	keys    *Keyring
	chainID *big.Int
	policy  *config.Policy

	mu      sync.Mutex
	senders map[common.Address]*sync.Mutex
}

func NewEthExecutor(backend EthBackend, keys *Keyring, chainID int64, policy *config.Policy) *EthExecutor {
	return &EthExecutor{
		backend: backend,
		keys:    keys,
		chainID: big.NewInt(chainID),
		policy:  policy,
		senders: make(map[common.Address]*sync.Mutex),
	}
}

// senderLock serializes nonce selection per hot wallet.
func (e *EthExecutor) senderLock(addr common.Address) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.senders[addr]
	if !ok {
		m = &sync.Mutex{}
		e.senders[addr] = m
	}
	return m
}

func (e *EthExecutor) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	cp, ok := e.policy.Currency(req.Currency)
	if !ok || cp.Chain != config.ChainEthereum {
		return SendResult{}, fmt.Errorf("%w: %s on ethereum executor", ErrUnsupportedCurrency, req.Currency)
	}
	priv, ok := e.keys.Key(req.Source)
	if !ok {
		return SendResult{Error: fmt.Sprintf("no signing key for hot wallet %s", req.Source)}, nil
	}
	if !common.IsHexAddress(req.Destination) {
		return SendResult{Error: fmt.Sprintf("invalid destination %s", req.Destination)}, nil
	}
	amount, err := ToBaseUnits(req.Amount, cp.Decimals)
	if err != nil {
		return SendResult{Error: err.Error()}, nil
	}

	from := crypto.PubkeyToAddress(priv.PublicKey)
	dest := common.HexToAddress(req.Destination)

	to := dest
	value := amount
	var data []byte
	gas := uint64(nativeTransferGas)
	if cp.Contract != "" {
		to = common.HexToAddress(cp.Contract)
		value = big.NewInt(0)
		data, err = erc20ABI.Pack("transfer", dest, amount)
		if err != nil {
			return SendResult{Error: fmt.Sprintf("pack transfer: %v", err)}, nil
		}
		est, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
		if err != nil {
			return failed(fmt.Errorf("estimate gas: %w", err)), nil
		}
		gas = est + est*gasBufferPercent/100
	}

	lk := e.senderLock(from)
	lk.Lock()
	defer lk.Unlock()

	nonce, err := e.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return failed(fmt.Errorf("pending nonce: %w", err)), nil
	}
	tip, err := e.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return failed(fmt.Errorf("suggest gas tip: %w", err)), nil
	}
	header, err := e.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return failed(fmt.Errorf("latest header: %w", err)), nil
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.NewLondonSigner(e.chainID), priv)
	if err != nil {
		return SendResult{Error: fmt.Sprintf("sign tx: %v", err)}, nil
	}
	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return failed(fmt.Errorf("send transaction: %w", err)), nil
	}
	return SendResult{Success: true, TxHash: signed.Hash().Hex()}, nil
}
