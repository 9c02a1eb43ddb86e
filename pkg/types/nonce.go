package types

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// NonceTokenLength is the wire size of a nonce token: 4 bytes of big-endian
// unix seconds followed by 4 random bytes.
const NonceTokenLength = 8

// Nonce is a single-use request token. The server treats it as opaque except
// for the embedded timestamp, which bounds how long a token stays in the
// replay ledger.
type Nonce struct {
	SinceEpoch uint32
	Random     [4]byte
}

// NewNonce creates a nonce stamped with the given time.
func NewNonce(now time.Time) (Nonce, error) {
	n := Nonce{SinceEpoch: uint32(now.Unix())}
	if _, err := rand.Read(n.Random[:]); err != nil {
		return Nonce{}, fmt.Errorf("nonce: reading randomness: %w", err)
	}
	return n, nil
}

// ParseNonceToken rebuilds a nonce from its token form.
func ParseNonceToken(token []byte) (Nonce, error) {
	if len(token) != NonceTokenLength {
		return Nonce{}, fmt.Errorf("nonce: token must be %d bytes, got %d", NonceTokenLength, len(token))
	}
	n := Nonce{SinceEpoch: binary.BigEndian.Uint32(token[:4])}
	copy(n.Random[:], token[4:])
	return n, nil
}

// Token serializes the nonce for signing and for the replay ledger.
func (n Nonce) Token() []byte {
	token := make([]byte, NonceTokenLength)
	binary.BigEndian.PutUint32(token[:4], n.SinceEpoch)
	copy(token[4:], n.Random[:])
	return token
}

// Time returns the timestamp embedded in the nonce.
func (n Nonce) Time() time.Time {
	return time.Unix(int64(n.SinceEpoch), 0)
}
