// Package cryptoutil holds the gateway's cryptographic primitives:
// password hashing, API-key hashing and minting, and authenticated
// encryption of stored payloads.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

var (
	// ErrInvalidHashFormat indicates a stored password hash is not in
	// the expected "salt:derived" form.
	ErrInvalidHashFormat = errors.New("invalid password hash format")

	// ErrDecryptionFailed indicates an authentication-tag mismatch,
	// typically a wrong key or wrong associated data.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidMasterKey indicates the master key is not 64 hex chars.
	ErrInvalidMasterKey = errors.New("master key must be 64 hex characters (256 bits)")
)

const (
	saltLen = 16
	keyLen  = 64

	scryptN = 32768
	scryptR = 8
	scryptP = 1

	// APIKeyPrefixLen is the number of leading characters stored for display.
	APIKeyPrefixLen = 12

	// apiKeyScheme prefixes every minted data-plane key.
	apiKeyScheme = "loom_sk_"
)

// HashPassword derives a storable "salt:derived" hash from a password
// using scrypt with a fresh 16-byte salt.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(derived), nil
}

// VerifyPassword checks a password against a stored "salt:derived" hash
// using a constant-time comparison.
func VerifyPassword(stored, password string) (bool, error) {
	salthex, derivedhex, ok := strings.Cut(stored, ":")
	if !ok {
		return false, ErrInvalidHashFormat
	}
	salt, err := hex.DecodeString(salthex)
	if err != nil {
		return false, ErrInvalidHashFormat
	}
	want, err := hex.DecodeString(derivedhex)
	if err != nil || len(want) != keyLen {
		return false, ErrInvalidHashFormat
	}
	got, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return false, fmt.Errorf("derive key: %w", err)
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// KeyHash returns the 64-char hex SHA-256 of a raw API key. API keys are
// looked up by exact match on this value; the raw key is never stored.
func KeyHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewAPIKey mints a raw data-plane API key and its display prefix.
// Shape: "loom_sk_" + 43 URL-safe random characters.
func NewAPIKey() (raw, prefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	raw = apiKeyScheme + base64.RawURLEncoding.EncodeToString(buf)
	return raw, raw[:APIKeyPrefixLen], nil
}

// NewInviteToken mints an opaque URL-safe invite token.
func NewInviteToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Cipher performs AES-256-GCM encryption of variable-length payloads.
// The associated data, when used, binds a ciphertext to its tenant so a
// payload encrypted for one tenant cannot be decrypted under another.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 64-char hex master key.
func NewCipher(masterKeyHex string) (*Cipher, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidMasterKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh 12-byte IV.
func (c *Cipher) Encrypt(plaintext, associatedData []byte) (ciphertext, iv []byte, err error) {
	iv = make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}
	ciphertext = c.aead.Seal(nil, iv, plaintext, associatedData)
	return ciphertext, iv, nil
}

// Decrypt opens a ciphertext. Returns ErrDecryptionFailed on tag mismatch.
func (c *Cipher) Decrypt(ciphertext, iv, associatedData []byte) ([]byte, error) {
	plaintext, err := c.aead.Open(nil, iv, ciphertext, associatedData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
