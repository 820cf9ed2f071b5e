package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	algo, ok := Get(Scheme_RSA_PKCS1_SHA256)
	require.True(t, ok)
	assert.Equal(t, Scheme_RSA_PKCS1_SHA256, algo.ID())
}

func TestGetUnregistered(t *testing.T) {
	_, ok := Get(Scheme(0xFFFF)) // Reserved but unregistered
	assert.False(t, ok)
}

func TestSchemeBytes(t *testing.T) {
	b := Scheme_ECDSA_Secp256r1_SHA256.Bytes()
	require.Equal(t, []byte{0x04, 0x03}, b)

	out, rest, err := Scheme(0).FromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, Scheme_ECDSA_Secp256r1_SHA256, out)
	assert.Empty(t, rest)
}
