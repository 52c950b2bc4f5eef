package memory

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("hello"), []byte("s1"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "hello")

	plain, err := c.Open(sealed, []byte("s1"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))
}

func TestCipherRejectsWrongAADAndTampering(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("hello"), []byte("s1"))
	require.NoError(t, err)

	_, err = c.Open(sealed, []byte("s2"))
	assert.ErrorIs(t, err, ErrDecrypt)

	sealed[len(sealed)-1] ^= 0xff
	_, err = c.Open(sealed, []byte("s1"))
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = c.Open([]byte("short"), nil)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestParseKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	got, err := ParseKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	got, err = ParseKey(" " + base64.RawURLEncoding.EncodeToString(key) + "\n")
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = ParseKey(base64.StdEncoding.EncodeToString([]byte("too short")))
	assert.Error(t, err)

	_, err = ParseKey("%%%")
	assert.Error(t, err)
}
