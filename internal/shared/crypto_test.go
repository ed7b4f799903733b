package shared

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecretBoxRoundTrip(t *testing.T) {
	box, err := NewSecretBox(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	sealed, err := box.Encrypt("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, sealed)
	require.NotContains(t, sealed, "horse")

	opened, err := box.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, "correct horse battery staple", opened)
}

func TestSecretBoxEmptyPlaintext(t *testing.T) {
	box, err := NewSecretBox(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	sealed, err := box.Encrypt("")
	require.NoError(t, err)
	require.Empty(t, sealed)

	opened, err := box.Decrypt("")
	require.NoError(t, err)
	require.Empty(t, opened)
}

func TestSecretBoxNonceVariesPerSeal(t *testing.T) {
	box, err := NewSecretBox(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	first, err := box.Encrypt("pin 4242")
	require.NoError(t, err)
	second, err := box.Encrypt("pin 4242")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestSecretBoxWrongKey(t *testing.T) {
	box, err := NewSecretBox(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	other, err := NewSecretBox(bytes.Repeat([]byte{8}, 32))
	require.NoError(t, err)

	sealed, err := box.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestSecretBoxGarbageCiphertext(t *testing.T) {
	box, err := NewSecretBox(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	_, err = box.Decrypt("not base64!!")
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = box.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNewSecretBoxFromBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{9}, 32))
	box, err := NewSecretBoxFromBase64(encoded)
	require.NoError(t, err)

	sealed, err := box.Encrypt("bios unlock")
	require.NoError(t, err)
	opened, err := box.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, "bios unlock", opened)

	_, err = NewSecretBoxFromBase64("%%%")
	require.Error(t, err)

	_, err = NewSecretBoxFromBase64(base64.StdEncoding.EncodeToString([]byte("too short")))
	require.Error(t, err)
}
