package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"golang.org/x/crypto/pbkdf2"
)

const kdfIterations = 100_000

// Vault performs symmetric encryption of exchange secrets at rest. The key
// is derived once from the master secret and a deployment-fixed salt;
// ciphertexts are urlsafe base64 of nonce||sealed.
type Vault struct {
	aead cipher.AEAD
}

func New(masterSecret, salt string) (*Vault, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("vault master secret is required")
	}
	key := pbkdf2.Key([]byte(masterSecret), []byte(salt), kdfIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault gcm init: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext. The empty string encrypts to the empty string so
// optional fields (passphrase) round-trip without a presence flag.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault nonce: %w", err)
	}
	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// Decrypt opens ciphertext produced by Encrypt. Tampered input or input
// sealed under a different master secret fails with a DECRYPTION_FAILED
// AppError. That error is fatal to the caller: swallowing it would present
// data corruption as a missing credential.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", apperrors.NewDecryption("ciphertext is not valid base64", err)
	}
	if len(raw) < v.aead.NonceSize() {
		return "", apperrors.NewDecryption("ciphertext shorter than nonce", nil)
	}
	nonce, sealed := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperrors.NewDecryption("ciphertext failed authentication", err)
	}
	return string(plaintext), nil
}
