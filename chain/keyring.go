package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

const ethAccountPath = "m/44'/60'/0'/0/%d"

// Keyring holds the hot wallet signing keys, indexed by address.
type Keyring struct {
	keys  map[common.Address]*ecdsa.PrivateKey
	order []common.Address
}

// NewKeyringFromMnemonic derives the first n accounts of the BIP-44 ethereum path.
func NewKeyringFromMnemonic(mnemonic string, n int) (*Keyring, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid hot wallet mnemonic")
	}
	if n < 1 {
		n = 1
	}
	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	kr := &Keyring{keys: make(map[common.Address]*ecdsa.PrivateKey, n)}
	for i := 0; i < n; i++ {
		priv, err := deriveKey(master, fmt.Sprintf(ethAccountPath, i))
		if err != nil {
			return nil, err
		}
		kr.add(priv)
	}
	return kr, nil
}

func NewKeyring(keys ...*ecdsa.PrivateKey) *Keyring {
	kr := &Keyring{keys: make(map[common.Address]*ecdsa.PrivateKey, len(keys))}
	for _, k := range keys {
		kr.add(k)
	}
	return kr
}

func (k *Keyring) add(priv *ecdsa.PrivateKey) {
	addr := crypto.PubkeyToAddress(priv.PublicKey)
	if _, ok := k.keys[addr]; !ok {
		k.order = append(k.order, addr)
	}
	k.keys[addr] = priv
}

func (k *Keyring) Key(address string) (*ecdsa.PrivateKey, bool) {
	if !common.IsHexAddress(address) {
		return nil, false
	}
	priv, ok := k.keys[common.HexToAddress(address)]
	return priv, ok
}

func (k *Keyring) Addresses() []string {
	out := make([]string, len(k.order))
	for i, a := range k.order {
		out[i] = a.Hex()
	}
	return out
}

func deriveKey(master *hdkeychain.ExtendedKey, path string) (*ecdsa.PrivateKey, error) {
	indices, err := parseDerivationPath(path)
	if err != nil {
		return nil, err
	}
	key := master
	for _, idx := range indices {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", path, err)
		}
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return crypto.ToECDSA(priv.Serialize())
}

func parseDerivationPath(path string) ([]uint32, error) {
	if !strings.HasPrefix(path, "m/") {
		return nil, errors.New("path must start with m/")
	}
	parts := strings.Split(path[2:], "/")
	indices := make([]uint32, 0, len(parts))
	for _, p := range parts {
		hardened := strings.HasSuffix(p, "'")
		num, err := strconv.ParseUint(strings.TrimSuffix(p, "'"), 10, 31)
		if err != nil {
			return nil, fmt.Errorf("bad path segment %q: %w", p, err)
		}
		idx := uint32(num)
		if hardened {
			idx += hdkeychain.HardenedKeyStart
		}
		indices = append(indices, idx)
	}
	return indices, nil
}
