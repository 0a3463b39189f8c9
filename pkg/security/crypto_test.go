package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	salt, err := generateSalt()
	require.NoError(t, err)
	require.Len(t, salt, saltSize)

	hash := hashPassword("hunter2", salt)
	assert.True(t, verifyPassword("hunter2", salt, hash))
	assert.False(t, verifyPassword("hunter3", salt, hash))

	otherSalt, err := generateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, hash, hashPassword("hunter2", otherSalt),
		"same password with a different salt must hash differently")
}

func TestOpaqueTokensAreUnique(t *testing.T) {
	a, err := newOpaqueToken()
	require.NoError(t, err)
	b, err := newOpaqueToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestCipherRoundTrip(t *testing.T) {
	key, err := randomSecret(32)
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)

	sealed, err := c.Encrypt("the secret value")
	require.NoError(t, err)
	assert.NotEqual(t, "the secret value", sealed)

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "the secret value", plain)

	// Identical plaintexts seal to different ciphertexts under fresh nonces.
	again, err := c.Encrypt("the secret value")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestCipherRejectsBadInput(t *testing.T) {
	key, err := randomSecret(32)
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)

	_, err = c.Decrypt("not base64!!")
	assert.Error(t, err)
	_, err = c.Decrypt("c2hvcnQ")
	assert.Error(t, err)

	sealed, err := c.Encrypt("value")
	require.NoError(t, err)
	otherKey, err := randomSecret(32)
	require.NoError(t, err)
	other, err := NewCipher(otherKey)
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.Error(t, err, "decryption under a different key must fail")
}

func TestNewCipherKeyValidation(t *testing.T) {
	_, err := NewCipher("%%%")
	assert.Error(t, err)

	short, err := randomSecret(16)
	require.NoError(t, err)
	_, err = NewCipher(short)
	assert.Error(t, err)
}
