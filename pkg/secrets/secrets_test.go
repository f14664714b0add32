package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(fill byte) string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = fill
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	_, err := NewCipher("not base64!!!")
	assert.Error(t, err)

	_, err = NewCipher(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	c, err := NewCipher(testKey(1))
	require.NoError(t, err)

	encrypted, err := c.Encrypt("my-app-password")
	require.NoError(t, err)
	assert.NotEqual(t, "my-app-password", encrypted)

	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "my-app-password", decrypted)
}

func TestEncryptNonceIsRandom(t *testing.T) {
	c, err := NewCipher(testKey(1))
	require.NoError(t, err)

	a, err := c.Encrypt("same value")
	require.NoError(t, err)
	b, err := c.Encrypt("same value")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "encrypting twice must not repeat a nonce")
}

func TestDecryptWrongKey(t *testing.T) {
	c1, err := NewCipher(testKey(1))
	require.NoError(t, err)
	c2, err := NewCipher(testKey(2))
	require.NoError(t, err)

	encrypted, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(encrypted)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptMalformedInput(t *testing.T) {
	c, err := NewCipher(testKey(1))
	require.NoError(t, err)

	_, err = c.Decrypt("not base64!!!")
	assert.Error(t, err)

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("tiny")))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	tampered, err := c.Encrypt("secret")
	require.NoError(t, err)
	raw, _ := base64.StdEncoding.DecodeString(tampered)
	raw[len(raw)-1] ^= 0xff
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
