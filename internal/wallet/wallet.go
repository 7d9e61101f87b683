// Package wallet turns operator key material (a raw private key or a
// recovery phrase) into signing keys, and opens sealed keys from the store.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/decred/dcrd/hdkeychain/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/chain"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/failure"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/secret"
)

type Key struct {
	Private *ecdsa.PrivateKey
	Address common.Address
}

// Hex returns the 0x-prefixed private key.
func (k Key) Hex() string {
	return "0x" + common.Bytes2Hex(crypto.FromECDSA(k.Private))
}

func FromPrivateKey(raw string) (Key, error) {
	hexKey := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return Key{}, failure.Wrap(failure.InvalidKeyMaterial, err, "invalid private key")
	}
	return Key{Private: pk, Address: crypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// DefaultPath is the first account of the standard Ethereum derivation path,
// m/44'/60'/0'/0/0, which BSC wallets share.
var DefaultPath = []uint32{
	hdkeychain.HardenedKeyStart + 44,
	hdkeychain.HardenedKeyStart + 60,
	hdkeychain.HardenedKeyStart,
	0,
	0,
}

// bip32Versions carries the standard xprv/xpub version bytes. They only
// matter when a key is serialized, which FromSeed never does.
type bip32Versions struct{}

func (bip32Versions) HDPrivKeyVersion() [4]byte { return [4]byte{0x04, 0x88, 0xad, 0xe4} }
func (bip32Versions) HDPubKeyVersion() [4]byte  { return [4]byte{0x04, 0x88, 0xb2, 0x1e} }

// FromSeed derives the key at DefaultPath from a BIP-39 recovery phrase with
// an empty passphrase. The phrase must use the English wordlist and carry a
// valid checksum.
func FromSeed(phrase string) (Key, error) {
	mnemonic := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return Key{}, failure.Wrap(failure.InvalidKeyMaterial, err, "invalid recovery phrase")
	}

	extKey, err := hdkeychain.NewMaster(seed, bip32Versions{})
	if err != nil {
		return Key{}, failure.Wrap(failure.InvalidKeyMaterial, err, "derive master key")
	}
	for _, idx := range DefaultPath {
		child, err := extKey.ChildBIP32Std(idx)
		extKey.Zero()
		if err != nil {
			return Key{}, failure.Wrap(failure.InvalidKeyMaterial, err, "derive key")
		}
		extKey = child
	}
	defer extKey.Zero()

	raw, err := extKey.SerializedPrivKey()
	if err != nil {
		return Key{}, failure.Wrap(failure.InvalidKeyMaterial, err, "derive key")
	}
	pk, err := crypto.ToECDSA(raw)
	if err != nil {
		return Key{}, failure.Wrap(failure.InvalidKeyMaterial, err, "derive key")
	}
	return Key{Private: pk, Address: crypto.PubkeyToAddress(pk.PublicKey)}, nil
}

// KeyKind says how an operator supplied key material.
type KeyKind string

const (
	KindPrivateKey KeyKind = "privateKey"
	KindRecovery   KeyKind = "recovery"
)

// Import derives the key from raw material and seals it for the store.
func Import(box *secret.Box, raw string, kind KeyKind) (common.Address, string, error) {
	var (
		k   Key
		err error
	)
	switch kind {
	case KindRecovery:
		k, err = FromSeed(raw)
	case KindPrivateKey, "":
		k, err = FromPrivateKey(raw)
	default:
		return common.Address{}, "", fmt.Errorf("unknown key kind %q", kind)
	}
	if err != nil {
		return common.Address{}, "", err
	}
	sealed, err := box.Seal(k.Hex())
	if err != nil {
		return common.Address{}, "", fmt.Errorf("seal key: %w", err)
	}
	return k.Address, sealed, nil
}

// Opener returns a function that opens an account's sealed key and checks it
// against the stored address.
func Opener(box *secret.Box) func(a account.Account) (chain.Signer, error) {
	return func(a account.Account) (chain.Signer, error) {
		plain, err := box.Open(a.EncryptedKey)
		if err != nil {
			return chain.Signer{}, failure.Wrap(failure.InvalidKeyMaterial, err, fmt.Sprintf("open key for account %d", a.ID))
		}
		k, err := FromPrivateKey(plain)
		if err != nil {
			return chain.Signer{}, err
		}
		if a.Address != "" && !strings.EqualFold(a.Address, k.Address.Hex()) {
			return chain.Signer{}, failure.Newf(failure.InvalidKeyMaterial, "account %d: key belongs to %s, not %s", a.ID, k.Address.Hex(), a.Address)
		}
		return chain.NewSigner(k.Private), nil
	}
}
