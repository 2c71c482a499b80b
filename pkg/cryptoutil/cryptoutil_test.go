package cryptoutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	salt, derived, ok := strings.Cut(hash, ":")
	require.True(t, ok)
	assert.Len(t, salt, saltLen*2)
	assert.Len(t, derived, keyLen*2)

	ok, err = VerifyPassword(hash, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hash, "wrong password")
	require.NoError(t, err)
	assert.False(t, ok)

	// Fresh salts make equal passwords hash differently.
	other, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, stored := range []string{"", "nocolon", "zz:zz", "00ff:short"} {
		_, err := VerifyPassword(stored, "pw")
		assert.ErrorIs(t, err, ErrInvalidHashFormat, "stored=%q", stored)
	}
}

func TestNewAPIKeyShape(t *testing.T) {
	raw, prefix, err := NewAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, "loom_sk_"))
	assert.Len(t, raw, len("loom_sk_")+43)
	assert.Equal(t, raw[:APIKeyPrefixLen], prefix)

	// Lookup value is a stable 64-char hex digest.
	hash := KeyHash(raw)
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, KeyHash(raw))

	again, _, err := NewAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, raw, again)
}

func TestNewInviteToken(t *testing.T) {
	token, err := NewInviteToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testMasterKey)
	require.NoError(t, err)

	plaintext := []byte(`{"messages":[{"role":"user","content":"hi"}]}`)
	ciphertext, iv, err := c.Encrypt(plaintext, []byte("tenant-1"))
	require.NoError(t, err)
	assert.Len(t, iv, 12)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := c.Decrypt(ciphertext, iv, []byte("tenant-1"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestCipherRejectsWrongAssociatedData(t *testing.T) {
	c, err := NewCipher(testMasterKey)
	require.NoError(t, err)

	ciphertext, iv, err := c.Encrypt([]byte("secret"), []byte("tenant-1"))
	require.NoError(t, err)

	// A payload sealed for one tenant must not open under another.
	_, err = c.Decrypt(ciphertext, iv, []byte("tenant-2"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	// A tampered ciphertext fails the tag check.
	ciphertext[0] ^= 0xff
	_, err = c.Decrypt(ciphertext, iv, []byte("tenant-1"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "abcd", "zz" + testMasterKey[2:], testMasterKey + "00"} {
		_, err := NewCipher(key)
		assert.ErrorIs(t, err, ErrInvalidMasterKey, "key=%q", key)
	}
}
