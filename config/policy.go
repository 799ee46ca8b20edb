package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	ChainEthereum = "ethereum"
	ChainBitcoin  = "bitcoin"
)

// FeeSchedule is flat + amount*percent. Values are kept as strings in yaml
// so no precision is lost on the way in.
type FeeSchedule struct {
	Flat    decimal.Decimal `yaml:"-"`
	Percent decimal.Decimal `yaml:"-"`
}

type CurrencyPolicy struct {
	Symbol        string      `yaml:"-"`
	Chain         string      `yaml:"chain"`
	Decimals      int32       `yaml:"decimals"`
	Contract      string      `yaml:"contract"`
	Confirmations uint64      `yaml:"confirmations"`
	Executor      string      `yaml:"executor"`
	Fee           FeeSchedule `yaml:"-"`
}

type Policy struct {
	currencies map[string]CurrencyPolicy
}

type rawFee struct {
	Flat    string `yaml:"flat"`
	Percent string `yaml:"percent"`
}

type rawCurrency struct {
	CurrencyPolicy `yaml:",inline"`
	Fee            rawFee `yaml:"fee"`
}

type rawPolicy struct {
	Currencies map[string]rawCurrency `yaml:"currencies"`
}

func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

func ParsePolicy(data []byte) (*Policy, error) {
	var raw rawPolicy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if len(raw.Currencies) == 0 {
		return nil, fmt.Errorf("policy defines no currencies")
	}

	p := &Policy{currencies: make(map[string]CurrencyPolicy, len(raw.Currencies))}
	for sym, rc := range raw.Currencies {
		cp := rc.CurrencyPolicy
		cp.Symbol = strings.ToUpper(strings.TrimSpace(sym))
		fee, err := parseFee(rc.Fee)
		if err != nil {
			return nil, fmt.Errorf("currency %s: %w", cp.Symbol, err)
		}
		cp.Fee = fee
		if err := validateCurrency(cp); err != nil {
			return nil, err
		}
		p.currencies[cp.Symbol] = cp
	}
	return p, nil
}

func parseFee(rf rawFee) (FeeSchedule, error) {
	var fs FeeSchedule
	var err error
	if fs.Flat, err = parseDecimalOrZero(rf.Flat); err != nil {
		return fs, fmt.Errorf("fee.flat: %w", err)
	}
	if fs.Percent, err = parseDecimalOrZero(rf.Percent); err != nil {
		return fs, fmt.Errorf("fee.percent: %w", err)
	}
	if fs.Flat.IsNegative() || fs.Percent.IsNegative() || fs.Percent.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fs, fmt.Errorf("fee must satisfy flat >= 0 and 0 <= percent < 1")
	}
	return fs, nil
}

func parseDecimalOrZero(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}

func validateCurrency(cp CurrencyPolicy) error {
	if cp.Symbol == "" {
		return fmt.Errorf("currency symbol must not be empty")
	}
	switch cp.Chain {
	case ChainEthereum, ChainBitcoin:
	default:
		return fmt.Errorf("currency %s: unknown chain %q", cp.Symbol, cp.Chain)
	}
	if cp.Decimals < 0 || cp.Decimals > 18 {
		return fmt.Errorf("currency %s: decimals out of range", cp.Symbol)
	}
	return nil
}

// DefaultPolicy is used when no policy file is configured.
func DefaultPolicy() *Policy {
	mk := func(sym, chain string, decimals int32, contract string, conf uint64, executor, flat, pct string) CurrencyPolicy {
		return CurrencyPolicy{
			Symbol:        sym,
			Chain:         chain,
			Decimals:      decimals,
			Contract:      contract,
			Confirmations: conf,
			Executor:      executor,
			Fee: FeeSchedule{
				Flat:    decimal.RequireFromString(flat),
				Percent: decimal.RequireFromString(pct),
			},
		}
	}
	return &Policy{currencies: map[string]CurrencyPolicy{
		"ETH":  mk("ETH", ChainEthereum, 18, "", 12, "eth", "0.001", "0"),
		"USDT": mk("USDT", ChainEthereum, 6, "0xdAC17F958D2ee523a2206206994597C13D831ec7", 12, "eth", "1", "0.001"),
		"USDC": mk("USDC", ChainEthereum, 6, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 12, "eth", "1", "0.001"),
		"BTC":  mk("BTC", ChainBitcoin, 8, "", 3, "remote", "0.0001", "0"),
	}}
}

func (p *Policy) Currency(symbol string) (CurrencyPolicy, bool) {
	cp, ok := p.currencies[strings.ToUpper(strings.TrimSpace(symbol))]
	return cp, ok
}

func (p *Policy) Symbols() []string {
	out := make([]string, 0, len(p.currencies))
	for s := range p.currencies {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// FeeFor returns flat + amount*percent rounded down to the currency's decimals.
func (cp CurrencyPolicy) FeeFor(amount decimal.Decimal) decimal.Decimal {
	fee := cp.Fee.Flat.Add(amount.Mul(cp.Fee.Percent))
	return fee.RoundFloor(cp.Decimals)
}

// Fits reports whether amount has no more fractional digits than the currency allows.
func (cp CurrencyPolicy) Fits(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(cp.Decimals))
}
