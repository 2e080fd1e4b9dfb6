package vault

import (
	"testing"

	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	v, err := New("test-master-secret", "test-salt")
	require.NoError(t, err)

	for _, plaintext := range []string{
		"api-key-123",
		"s3cr3t with spaces",
		"ünïcødé-密钥",
		"x",
	} {
		ct, err := v.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ct)

		got, err := v.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEmptyStringRoundTripsAsEmpty(t *testing.T) {
	v, err := New("test-master-secret", "test-salt")
	require.NoError(t, err)

	ct, err := v.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ct)

	got, err := v.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	v, err := New("test-master-secret", "test-salt")
	require.NoError(t, err)

	a, err := v.Encrypt("same input")
	require.NoError(t, err)
	b, err := v.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "fresh nonce per encryption expected")
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	v, err := New("test-master-secret", "test-salt")
	require.NoError(t, err)

	ct, err := v.Encrypt("api-key-123")
	require.NoError(t, err)

	tampered := []byte(ct)
	tampered[len(tampered)/2] ^= 0x01
	_, err = v.Decrypt(string(tampered))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ErrDecryption))
}

func TestDecryptForeignKeyCiphertext(t *testing.T) {
	v1, err := New("master-one", "test-salt")
	require.NoError(t, err)
	v2, err := New("master-two", "test-salt")
	require.NoError(t, err)

	ct, err := v1.Encrypt("api-key-123")
	require.NoError(t, err)

	_, err = v2.Decrypt(ct)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ErrDecryption))
}

func TestDecryptGarbage(t *testing.T) {
	v, err := New("test-master-secret", "test-salt")
	require.NoError(t, err)

	for _, input := range []string{"not base64 !!!", "YWJj", "AAAA"} {
		_, err := v.Decrypt(input)
		require.Error(t, err, "input %q", input)
		assert.True(t, apperrors.IsKind(err, apperrors.ErrDecryption))
	}
}

func TestNewRequiresMasterSecret(t *testing.T) {
	_, err := New("", "salt")
	require.Error(t, err)
}
