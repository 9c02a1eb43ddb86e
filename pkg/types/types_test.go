package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asweigart123/nigori/pkg/types"
)

func TestNewUser(t *testing.T) {
	now := time.Now()

	user, err := types.NewUser([]byte{0x01, 0x02}, []byte{0xAA, 0xBB}, now)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, user.PublicKey)
	assert.Equal(t, []byte{0xAA, 0xBB}, user.PublicHash)
	assert.Equal(t, now, user.RegistrationTime)

	_, err = types.NewUser(nil, []byte{0xAA}, now)
	assert.Error(t, err)

	_, err = types.NewUser([]byte{0x01}, nil, now)
	assert.Error(t, err)
}

func TestNonceTokenRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)

	nonce, err := types.NewNonce(now)
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), nonce.Time().Unix())

	token := nonce.Token()
	require.Len(t, token, types.NonceTokenLength)

	parsed, err := types.ParseNonceToken(token)
	require.NoError(t, err)
	assert.Equal(t, nonce, parsed)
}

func TestParseNonceTokenRejectsBadLength(t *testing.T) {
	_, err := types.ParseNonceToken([]byte{0x01, 0x02})
	assert.Error(t, err)

	_, err = types.ParseNonceToken(make([]byte, types.NonceTokenLength+1))
	assert.Error(t, err)
}

func TestNoncesDiffer(t *testing.T) {
	now := time.Now()
	a, err := types.NewNonce(now)
	require.NoError(t, err)
	b, err := types.NewNonce(now)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token(), b.Token())
}

func TestRevValueEqual(t *testing.T) {
	a := types.RevValue{Revision: []byte{0x01}, Value: []byte{0xAA}}
	assert.True(t, a.Equal(types.RevValue{Revision: []byte{0x01}, Value: []byte{0xAA}}))
	assert.False(t, a.Equal(types.RevValue{Revision: []byte{0x01}, Value: []byte{0xBB}}))
	assert.False(t, a.Equal(types.RevValue{Revision: []byte{0x02}, Value: []byte{0xAA}}))
}
