package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12
)

// ErrBadPassword is returned when a sealed seed fails to open
var ErrBadPassword = errors.New("invalid password")

// sealedSeed is the on-disk form of an encrypted seed phrase
type sealedSeed struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"ciphertext"`
}

func newGCM(password, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// sealSeed encrypts phrase under password
func sealSeed(phrase string, password []byte) (*sealedSeed, error) {
	if len(password) == 0 {
		return nil, errors.New("password must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	ciphertext := aead.Seal(nil, nonce, []byte(phrase), nil)
	return &sealedSeed{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// open decrypts the seed phrase
func (s *sealedSeed) open(password []byte) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(s.Salt)
	if err != nil {
		return "", fmt.Errorf("failed to decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return "", fmt.Errorf("failed to decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(s.CipherText)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(nonce) != nonceLen {
		return "", fmt.Errorf("nonce has length %d", len(nonce))
	}

	aead, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrBadPassword
	}
	defer clear(plaintext)

	return string(plaintext), nil
}

// IsEncrypted reports whether the seed is stored sealed
func (w *LightWallet) IsEncrypted() bool {
	return w.data.EncryptedSeed != nil
}

// IsLocked reports whether spending keys are unavailable
func (w *LightWallet) IsLocked() bool {
	return w.keys == nil
}

// Encrypt seals the seed under password and locks the wallet
func (w *LightWallet) Encrypt(password []byte) error {
	if w.IsEncrypted() {
		return ErrAlreadyEncrypted
	}
	sealed, err := sealSeed(w.data.Seed, password)
	if err != nil {
		return err
	}
	w.data.EncryptedSeed = sealed
	w.data.Seed = ""
	w.dirty = true
	if err := w.Save(); err != nil {
		return err
	}
	return w.Lock()
}

// Decrypt permanently removes encryption from the wallet
func (w *LightWallet) Decrypt(password []byte) error {
	if !w.IsEncrypted() {
		return ErrNotEncrypted
	}
	if err := w.Unlock(password); err != nil {
		return err
	}
	w.data.Seed = w.unlockedSeed
	w.data.EncryptedSeed = nil
	w.unlockedSeed = ""
	w.dirty = true
	return w.Save()
}

// Unlock decrypts the seed into memory until Lock is called
func (w *LightWallet) Unlock(password []byte) error {
	if !w.IsEncrypted() {
		return ErrNotEncrypted
	}
	phrase, err := w.data.EncryptedSeed.open(password)
	if err != nil {
		return err
	}
	keys, err := newKeychain(phrase)
	if err != nil {
		return err
	}
	if err := w.unlockWith(keys); err != nil {
		return err
	}
	w.unlockedSeed = phrase
	return nil
}

// Lock drops spending keys from memory
func (w *LightWallet) Lock() error {
	if !w.IsEncrypted() {
		return ErrNotEncrypted
	}
	w.keys = nil
	w.privKeys = nil
	w.unlockedSeed = ""
	return nil
}
