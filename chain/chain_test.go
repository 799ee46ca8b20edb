package chain

import (
	"context"
	"errors"
	"math/big"
	"net"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/custody_settlement/config"
	"github.com/shopspring/decimal"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int32
		want     string
		wantErr  bool
	}{
		{"1", 18, "1000000000000000000", false},
		{"0.000001", 6, "1", false},
		{"12.5", 8, "1250000000", false},
		{"0.0000001", 6, "", true},
		{"-1", 6, "", true},
	}
	for _, tt := range tests {
		got, err := ToBaseUnits(decimal.RequireFromString(tt.amount), tt.decimals)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.amount)
			}
			continue
		}
		if err != nil || got.String() != tt.want {
			t.Errorf("%s: got %v %v, want %s", tt.amount, got, err, tt.want)
		}
	}

	back := FromBaseUnits(big.NewInt(1250000000), 8)
	if !back.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("FromBaseUnits = %s", back)
	}
}

func TestAddressValidator(t *testing.T) {
	v := NewAddressValidator(&chaincfg.MainNetParams)
	tests := []struct {
		chain   string
		address string
		ok      bool
	}{
		{config.ChainEthereum, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", true},
		{config.ChainEthereum, "0x9858effd232b4033e47d90003d41ec34ecaeda94", true},
		{config.ChainEthereum, "0x9858efFD232B4033E47d90003D41EC34EcaEda94", false},
		{config.ChainEthereum, "0x0000000000000000000000000000000000000000", false},
		{config.ChainEthereum, "0x1234", false},
		{config.ChainBitcoin, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", true},
		{config.ChainBitcoin, "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", true},
		{config.ChainBitcoin, "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn", false},
		{config.ChainBitcoin, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", false},
		{"solana", "whatever", false},
	}
	for _, tt := range tests {
		err := v.Validate(tt.chain, tt.address)
		if (err == nil) != tt.ok {
			t.Errorf("%s %s: err=%v, want ok=%v", tt.chain, tt.address, err, tt.ok)
		}
	}
}

func TestKeyringFromMnemonic(t *testing.T) {
	kr, err := NewKeyringFromMnemonic(testMnemonic, 2)
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	addrs := kr.Addresses()
	if len(addrs) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(addrs))
	}
	if addrs[0] != "0x9858EfFD232B4033E47d90003D41EC34EcaEda94" {
		t.Fatalf("unexpected first address %s", addrs[0])
	}
	if _, ok := kr.Key("0x9858effd232b4033e47d90003d41ec34ecaeda94"); !ok {
		t.Fatalf("lookup should be case insensitive")
	}
	if _, err := NewKeyringFromMnemonic("not a mnemonic", 1); err == nil {
		t.Fatalf("expected error for invalid mnemonic")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{timeoutErr{}, true},
		{errors.New("nonce too low"), true},
		{errors.New("Replacement transaction underpriced"), true},
		{errors.New("execution reverted"), false},
		{errors.New("invalid sender"), false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

type stubExecutor struct {
	calls int
	res   SendResult
}

func (s *stubExecutor) Send(context.Context, SendRequest) (SendResult, error) {
	s.calls++
	return s.res, nil
}

func TestExecutorRouter(t *testing.T) {
	eth := &stubExecutor{res: SendResult{Success: true, TxHash: "0xabc"}}
	r := NewExecutorRouter()
	r.Register("eth", eth)

	res, err := r.Send(context.Background(), SendRequest{Currency: "ETH"})
	if err != nil || !res.Success || eth.calls != 1 {
		t.Fatalf("unexpected result %+v %v", res, err)
	}
	if _, err := r.Send(context.Background(), SendRequest{Currency: "BTC"}); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
}
