package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// BIP-44 path prefix m/44'/60'/0'/0
var externalChainPath = []uint32{
	44 + hdkeychain.HardenedKeyStart,
	60 + hdkeychain.HardenedKeyStart,
	0 + hdkeychain.HardenedKeyStart,
	0,
}

// ErrInvalidSeed is returned for phrases that fail the BIP-39 checksum
var ErrInvalidSeed = errors.New("invalid seed phrase")

// keychain derives spending keys from a seed phrase
type keychain struct {
	external *hdkeychain.ExtendedKey
}

// NewSeedPhrase generates a fresh 24 word mnemonic
func NewSeedPhrase() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to build mnemonic: %w", err)
	}
	return phrase, nil
}

// NormalizeSeedPhrase collapses whitespace so equivalent phrases compare equal
func NormalizeSeedPhrase(phrase string) string {
	return strings.Join(strings.Fields(phrase), " ")
}

func newKeychain(phrase string) (*keychain, error) {
	phrase = NormalizeSeedPhrase(phrase)
	if !bip39.IsMnemonicValid(phrase) {
		return nil, ErrInvalidSeed
	}

	master, err := hdkeychain.NewMaster(bip39.NewSeed(phrase, ""), &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	key := master
	for _, idx := range externalChainPath {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key path: %w", err)
		}
	}
	return &keychain{external: key}, nil
}

// derive returns the private key and address at index
func (k *keychain) derive(index uint32) (*btcec.PrivateKey, string, error) {
	child, err := k.external.Derive(index)
	if err != nil {
		return nil, "", fmt.Errorf("failed to derive address %d: %w", index, err)
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get private key %d: %w", index, err)
	}
	addr := crypto.PubkeyToAddress(*priv.PubKey().ToECDSA()).Hex()
	return priv, addr, nil
}

// normalizeAddress returns the checksummed form of a hex address
func normalizeAddress(addr string) (string, bool) {
	if !common.IsHexAddress(addr) {
		return "", false
	}
	return common.HexToAddress(addr).Hex(), true
}
