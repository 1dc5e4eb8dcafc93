package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESEncryptor(t *testing.T) {
	enc, err := NewAESEncryptor("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		ciphertext, err := enc.Encrypt("s3cr3t-token")
		require.NoError(t, err)
		assert.NotContains(t, ciphertext, "s3cr3t")

		plaintext, err := enc.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "s3cr3t-token", plaintext)
	})

	t.Run("nonce makes ciphertexts differ", func(t *testing.T) {
		a, _ := enc.Encrypt("same")
		b, _ := enc.Encrypt("same")
		assert.NotEqual(t, a, b)
	})

	t.Run("tampered ciphertext fails", func(t *testing.T) {
		ciphertext, _ := enc.Encrypt("value")
		raw, _ := base64.StdEncoding.DecodeString(ciphertext)
		raw[len(raw)-1] ^= 0xff
		_, err := enc.Decrypt(base64.StdEncoding.EncodeToString(raw))
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("other key cannot decrypt", func(t *testing.T) {
		other, err := NewAESEncryptor("another-secret-another-secret-xx")
		require.NoError(t, err)
		ciphertext, _ := enc.Encrypt("value")
		_, err = other.Decrypt(ciphertext)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("input validation", func(t *testing.T) {
		_, err := enc.Encrypt("")
		assert.ErrorIs(t, err, ErrEmptyPlaintext)
		_, err = enc.Decrypt("")
		assert.ErrorIs(t, err, ErrEmptyCiphertext)
		_, err = enc.Decrypt("not base64!")
		assert.ErrorIs(t, err, ErrInvalidCiphertext)
		_, err = enc.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
		assert.ErrorIs(t, err, ErrCiphertextTooShort)
	})

	_, err = NewAESEncryptor("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}
