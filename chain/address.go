package chain

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/custody_settlement/config"
	"github.com/ethereum/go-ethereum/common"
)

func BitcoinParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	}
	return nil, fmt.Errorf("unknown bitcoin network %q", network)
}

type AddressValidator struct {
	btcParams *chaincfg.Params
}

func NewAddressValidator(btcParams *chaincfg.Params) *AddressValidator {
	if btcParams == nil {
		btcParams = &chaincfg.MainNetParams
	}
	return &AddressValidator{btcParams: btcParams}
}

func (v *AddressValidator) Validate(chainName, address string) error {
	switch chainName {
	case config.ChainEthereum:
		return validateEthAddress(address)
	case config.ChainBitcoin:
		addr, err := btcutil.DecodeAddress(address, v.btcParams)
		if err != nil {
			return fmt.Errorf("invalid bitcoin address: %w", err)
		}
		if !addr.IsForNet(v.btcParams) {
			return fmt.Errorf("bitcoin address %s is not for %s", address, v.btcParams.Name)
		}
		return nil
	}
	return fmt.Errorf("unknown chain %q", chainName)
}

func validateEthAddress(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid ethereum address %q", address)
	}
	a := common.HexToAddress(address)
	if a == (common.Address{}) {
		return fmt.Errorf("zero address is not a valid destination")
	}
	// mixed case means EIP-55 checksum
	body := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if a.Hex()[2:] != body {
			return fmt.Errorf("ethereum address %q fails checksum", address)
		}
	}
	return nil
}
