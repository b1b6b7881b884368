// Package security wraps signing key material at rest with AES-256-GCM,
// used by file-backed signing authorities that keep an SSH private key
// passphrase-protected on disk rather than in plain PEM.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// KeyProtector seals and opens key bytes with AES-256-GCM. A
// KeyProtector built from a raw key reuses that key for every call;
// one built from a passphrase derives a fresh scrypt key per Encrypt
// call from a random salt it then prepends to the ciphertext, so
// Decrypt never needs the salt supplied out of band.
type KeyProtector struct {
	key        []byte // set when constructed from a raw key; nil otherwise
	passphrase string // set when constructed from a passphrase; empty otherwise
}

// NewKeyProtector builds a KeyProtector from a 32-byte AES-256 key.
func NewKeyProtector(key []byte) (*KeyProtector, error) {
	if len(key) != scryptKeyLen {
		return nil, fmt.Errorf("encryption key must be %d bytes for AES-256, got %d", scryptKeyLen, len(key))
	}
	return &KeyProtector{key: key}, nil
}

// NewKeyProtectorFromPassphrase builds a KeyProtector that derives its
// AES key from passphrase via scrypt, salted fresh on every Encrypt call.
func NewKeyProtectorFromPassphrase(passphrase string) (*KeyProtector, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	return &KeyProtector{passphrase: passphrase}, nil
}

// Encrypt seals plaintext key material, returning salt (if derived from
// a passphrase) followed by the GCM nonce followed by ciphertext.
func (p *KeyProtector) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot encrypt empty data")
	}

	var salt []byte
	key := p.key
	if p.passphrase != "" {
		var err error
		salt = make([]byte, saltLen)
		if _, err = io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("generating salt: %w", err)
		}
		key, err = deriveKey(p.passphrase, salt)
		if err != nil {
			return nil, err
		}
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return append(salt, gcm.Seal(nonce, nonce, plaintext, nil)...), nil
}

// Decrypt reverses Encrypt, reading back whichever prefix form Encrypt
// produced.
func (p *KeyProtector) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("cannot decrypt empty data")
	}

	key := p.key

	if p.passphrase != "" {
		if len(ciphertext) < saltLen {
			return nil, fmt.Errorf("ciphertext is too short to contain a salt")
		}
		var salt []byte
		salt, ciphertext = ciphertext[:saltLen], ciphertext[saltLen:]
		var err error
		key, err = deriveKey(p.passphrase, salt)
		if err != nil {
			return nil, err
		}
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext is too short to contain a nonce")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key from passphrase: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("constructing cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("constructing GCM mode: %w", err)
	}
	return gcm, nil
}
