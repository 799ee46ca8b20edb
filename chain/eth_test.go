package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/custody_settlement/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

type fakeBackend struct {
	nonce    uint64
	sendErr  error
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	txs      map[common.Hash]*types.Transaction
	head     uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nonce:    7,
		receipts: make(map[common.Hash]*types.Receipt),
		txs:      make(map[common.Hash]*types.Transaction),
		head:     120,
	}
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(10_000_000_000)}, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 50000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionByHash(_ context.Context, h common.Hash) (*types.Transaction, bool, error) {
	tx, ok := f.txs[h]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func testKeyring(t *testing.T) *Keyring {
	t.Helper()
	kr, err := NewKeyringFromMnemonic(testMnemonic, 1)
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	return kr
}

const dest = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

func TestEthExecutorNative(t *testing.T) {
	backend := newFakeBackend()
	kr := testKeyring(t)
	ex := NewEthExecutor(backend, kr, 1, config.DefaultPolicy())

	res, err := ex.Send(context.Background(), SendRequest{
		WithdrawalID: "w1",
		Source:       kr.Addresses()[0],
		Destination:  dest,
		Amount:       decimal.RequireFromString("0.5"),
		Currency:     "ETH",
	})
	if err != nil || !res.Success {
		t.Fatalf("send: %+v %v", res, err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.Hash().Hex() != res.TxHash {
		t.Fatalf("tx hash mismatch")
	}
	if tx.Type() != types.DynamicFeeTxType || tx.Nonce() != 7 || tx.Gas() != nativeTransferGas {
		t.Fatalf("unexpected tx type=%d nonce=%d gas=%d", tx.Type(), tx.Nonce(), tx.Gas())
	}
	if tx.Value().String() != "500000000000000000" || *tx.To() != common.HexToAddress(dest) {
		t.Fatalf("unexpected value/to %s %s", tx.Value(), tx.To())
	}
	if tx.GasFeeCap().String() != "21000000000" {
		t.Fatalf("fee cap = %s", tx.GasFeeCap())
	}
	from, err := types.Sender(types.NewLondonSigner(big.NewInt(1)), tx)
	if err != nil || from.Hex() != kr.Addresses()[0] {
		t.Fatalf("sender = %s %v", from.Hex(), err)
	}
}

func TestEthExecutorERC20(t *testing.T) {
	backend := newFakeBackend()
	kr := testKeyring(t)
	policy := config.DefaultPolicy()
	ex := NewEthExecutor(backend, kr, 1, policy)

	res, err := ex.Send(context.Background(), SendRequest{
		Source:      kr.Addresses()[0],
		Destination: dest,
		Amount:      decimal.RequireFromString("25.5"),
		Currency:    "USDT",
	})
	if err != nil || !res.Success {
		t.Fatalf("send: %+v %v", res, err)
	}
	tx := backend.sent[0]
	usdt, _ := policy.Currency("USDT")
	if *tx.To() != common.HexToAddress(usdt.Contract) || tx.Value().Sign() != 0 {
		t.Fatalf("token transfer must call the contract with zero value")
	}
	if !bytes.Equal(tx.Data()[:4], erc20ABI.Methods["transfer"].ID) {
		t.Fatalf("unexpected selector %x", tx.Data()[:4])
	}
	if tx.Gas() != 60000 {
		t.Fatalf("gas = %d, want estimate plus buffer", tx.Gas())
	}
	args, err := erc20ABI.Methods["transfer"].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[1].(*big.Int).String() != "25500000" {
		t.Fatalf("amount = %v", args[1])
	}
}

func TestEthExecutorFailures(t *testing.T) {
	backend := newFakeBackend()
	kr := testKeyring(t)
	ex := NewEthExecutor(backend, kr, 1, config.DefaultPolicy())
	ctx := context.Background()

	res, err := ex.Send(ctx, SendRequest{Source: dest, Destination: dest, Amount: decimal.NewFromInt(1), Currency: "ETH"})
	if err != nil || res.Success || res.Retryable {
		t.Fatalf("unknown source key should be a fatal failure, got %+v %v", res, err)
	}

	backend.sendErr = errors.New("nonce too low")
	res, err = ex.Send(ctx, SendRequest{Source: kr.Addresses()[0], Destination: dest, Amount: decimal.NewFromInt(1), Currency: "ETH"})
	if err != nil || res.Success || !res.Retryable {
		t.Fatalf("nonce error should be retryable failure, got %+v %v", res, err)
	}

	if _, err := ex.Send(ctx, SendRequest{Currency: "BTC"}); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
}

func TestEthVerifierNative(t *testing.T) {
	backend := newFakeBackend()
	v := NewEthVerifier(backend, config.DefaultPolicy())
	hot := common.HexToAddress(dest)

	tx := types.NewTx(&types.DynamicFeeTx{To: &hot, Value: big.NewInt(2_000_000_000_000_000_000), ChainID: big.NewInt(1)})
	h := common.HexToHash("0x01")
	backend.txs[h] = tx
	backend.receipts[h] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(115)}

	res, err := v.Verify(context.Background(), VerifyRequest{TxHash: h.Hex(), ExpectedAddress: dest, Amount: decimal.NewFromInt(2), Currency: "ETH"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.IsValid || res.Confirmations != 6 || res.Confirmed {
		t.Fatalf("unexpected result %+v", res)
	}

	backend.head = 126
	res, _ = v.Verify(context.Background(), VerifyRequest{TxHash: h.Hex(), ExpectedAddress: dest, Amount: decimal.NewFromInt(2), Currency: "ETH"})
	if !res.Confirmed || res.Confirmations != 12 {
		t.Fatalf("expected confirmed at 12 confirmations, got %+v", res)
	}

	res, _ = v.Verify(context.Background(), VerifyRequest{TxHash: h.Hex(), ExpectedAddress: dest, Amount: decimal.NewFromInt(3), Currency: "ETH"})
	if res.IsValid {
		t.Fatalf("amount mismatch must be invalid")
	}

	res, err = v.Verify(context.Background(), VerifyRequest{TxHash: common.HexToHash("0x02").Hex(), ExpectedAddress: dest, Amount: decimal.NewFromInt(2), Currency: "ETH"})
	if err != nil || res.IsValid || res.Error == "" {
		t.Fatalf("unknown tx should be invalid, got %+v %v", res, err)
	}

	res, err = v.Verify(context.Background(), VerifyRequest{TxHash: "0xzz", ExpectedAddress: dest, Amount: decimal.NewFromInt(2), Currency: "ETH"})
	if err != nil || res.IsValid {
		t.Fatalf("malformed hash should be invalid, got %+v %v", res, err)
	}
}

func TestEthVerifierTokenTransfer(t *testing.T) {
	backend := newFakeBackend()
	policy := config.DefaultPolicy()
	usdt, _ := policy.Currency("USDT")
	v := NewEthVerifier(backend, policy)

	amount := big.NewInt(10_000_000)
	h := common.HexToHash("0x03")
	backend.receipts[h] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(100),
		Logs: []*types.Log{{
			Address: common.HexToAddress(usdt.Contract),
			Topics: []common.Hash{
				transferTopic(),
				common.BytesToHash(common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes()),
				common.BytesToHash(common.HexToAddress(dest).Bytes()),
			},
			Data: common.LeftPadBytes(amount.Bytes(), 32),
		}},
	}

	res, err := v.Verify(context.Background(), VerifyRequest{TxHash: h.Hex(), ExpectedAddress: dest, Amount: decimal.NewFromInt(10), Currency: "USDT"})
	if err != nil || !res.IsValid || !res.Confirmed {
		t.Fatalf("unexpected result %+v %v", res, err)
	}

	res, _ = v.Verify(context.Background(), VerifyRequest{TxHash: h.Hex(), ExpectedAddress: dest, Amount: decimal.NewFromInt(11), Currency: "USDT"})
	if res.IsValid {
		t.Fatalf("wrong token amount must be invalid")
	}

	backend.receipts[h].Status = types.ReceiptStatusFailed
	res, _ = v.Verify(context.Background(), VerifyRequest{TxHash: h.Hex(), ExpectedAddress: dest, Amount: decimal.NewFromInt(10), Currency: "USDT"})
	if res.IsValid || res.Error != "transaction reverted" {
		t.Fatalf("reverted tx must be invalid, got %+v", res)
	}
}
