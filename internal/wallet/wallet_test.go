package wallet

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/failure"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/secret"
)

// Well-known development vector: the phrase below derives this key and
// address at m/44'/60'/0'/0/0.
const (
	devPhrase  = "test test test test test test test test test test test junk"
	devKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestFromPrivateKey(t *testing.T) {
	t.Parallel()

	for _, in := range []string{devKey, devKey[2:], "  " + devKey + "\n"} {
		k, err := FromPrivateKey(in)
		if err != nil {
			t.Fatalf("FromPrivateKey(%q): %v", in, err)
		}
		if k.Address != common.HexToAddress(devAddress) {
			t.Fatalf("address %s, want %s", k.Address.Hex(), devAddress)
		}
		if k.Hex() != devKey {
			t.Fatalf("hex %s", k.Hex())
		}
	}

	if _, err := FromPrivateKey("0x1234"); !failure.Is(err, failure.InvalidKeyMaterial) {
		t.Fatalf("got %v, want InvalidKeyMaterial", err)
	}
}

func TestFromSeed(t *testing.T) {
	t.Parallel()

	k, err := FromSeed(devPhrase)
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	if k.Address != common.HexToAddress(devAddress) {
		t.Fatalf("address %s, want %s", k.Address.Hex(), devAddress)
	}
	if k.Hex() != devKey {
		t.Fatalf("key %s, want %s", k.Hex(), devKey)
	}

	// Word count, wordlist and checksum are all enforced.
	for _, bad := range []string{
		"",
		"test test test",
		devPhrase + " extra",
		"t3st test test test test test test test test test test junk",
		strings.Repeat("abandon ", 12),
		"zzzz test test test test test test test test test test junk",
	} {
		if _, err := FromSeed(bad); !failure.Is(err, failure.InvalidKeyMaterial) {
			t.Fatalf("FromSeed(%q) = %v, want InvalidKeyMaterial", bad, err)
		}
	}
}

func TestFromSeedKnownVector(t *testing.T) {
	t.Parallel()

	// The all-"abandon" phrase with its checksum word, m/44'/60'/0'/0/0.
	phrase := strings.Repeat("abandon ", 11) + "about"
	k, err := FromSeed("  " + strings.ToUpper(phrase) + "\n")
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	if want := common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94"); k.Address != want {
		t.Fatalf("address %s, want %s", k.Address.Hex(), want.Hex())
	}
}

func TestImportAndOpen(t *testing.T) {
	t.Parallel()

	box, err := secret.New("passphrase")
	if err != nil {
		t.Fatalf("secret.New: %v", err)
	}
	addr, sealed, err := Import(box, devPhrase, KindRecovery)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if addr != common.HexToAddress(devAddress) {
		t.Fatalf("address %s", addr.Hex())
	}

	open := Opener(box)
	s, err := open(account.Account{ID: 1, Address: devAddress, EncryptedKey: sealed})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Address != addr {
		t.Fatalf("signer address %s", s.Address.Hex())
	}

	_, err = open(account.Account{ID: 2, Address: "0x0000000000000000000000000000000000000001", EncryptedKey: sealed})
	if !failure.Is(err, failure.InvalidKeyMaterial) {
		t.Fatalf("address mismatch: got %v", err)
	}

	_, err = open(account.Account{ID: 3, EncryptedKey: "garbage"})
	if !failure.Is(err, failure.InvalidKeyMaterial) {
		t.Fatalf("garbage key: got %v", err)
	}
}
