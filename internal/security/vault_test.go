package security

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVault_EncryptDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte("k"), 32)
	v, err := NewVault(key)
	require.NoError(t, err)

	plaintext := []byte(`{"type":"service_account","project_id":"pomodex-fd2bcd"}`)

	ciphertext, err := v.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := v.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestNewVault_RejectsWrongKeyLength(t *testing.T) {
	_, err := NewVault([]byte("too-short"))
	assert.Error(t, err)
}

func TestNewVaultFromPassphrase_DerivesUsableKey(t *testing.T) {
	v, err := NewVaultFromPassphrase("a long passphrase used for tests")
	require.NoError(t, err)

	ciphertext, err := v.Encrypt([]byte("hello"))
	require.NoError(t, err)
	decrypted, err := v.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), decrypted)
}

func TestVault_DecryptRejectsTamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte("k"), 32)
	v, err := NewVault(key)
	require.NoError(t, err)

	ciphertext, err := v.Encrypt([]byte("hello"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = v.Decrypt(ciphertext)
	assert.Error(t, err)
}
