// Package secret seals private keys at rest with a key derived from the
// process-wide ENCRYPTION_KEY.
package secret

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 10000
	keyLen        = 32
)

// kdfSalt is fixed so existing sealed keys keep opening across restarts.
var kdfSalt = []byte("salt")

var ErrEmptyPassphrase = errors.New("encryption key is empty")

// Box encrypts and decrypts with AES-256-CBC. Sealed values are
// "<iv hex>:<ciphertext hex>".
type Box struct {
	key []byte
}

func New(passphrase string) (*Box, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrEmptyPassphrase
	}
	return &Box{key: pbkdf2.Key([]byte(passphrase), kdfSalt, kdfIterations, keyLen, sha256.New)}, nil
}

func (b *Box) Seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}
	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func (b *Box) Open(sealed string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(strings.TrimSpace(sealed), ":")
	if !ok {
		return "", fmt.Errorf("sealed value: missing iv separator")
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("sealed value: bad iv")
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", fmt.Errorf("sealed value: bad ciphertext: %w", err)
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("sealed value: ciphertext is not a whole number of blocks")
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		// Almost always a wrong ENCRYPTION_KEY.
		return "", fmt.Errorf("sealed value: %w", err)
	}
	return string(plain), nil
}

// pad applies PKCS#7.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errors.New("bad padding")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.New("bad padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("bad padding")
		}
	}
	return b[:len(b)-n], nil
}
