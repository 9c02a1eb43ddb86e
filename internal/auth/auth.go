// Package auth verifies signed requests before they reach the storage
// engine. A request carries the signer's public key hash, a single-use
// nonce and an ed25519 signature over the nonce token and the request
// payload; verification checks the signature, the nonce's freshness against
// the clock, and the replay ledger.
package auth

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"

	"github.com/asweigart123/nigori/internal/database"
	"github.com/asweigart123/nigori/pkg/types"
)

var (
	ErrUnknownUser  = errors.New("auth: unknown user")
	ErrBadSignature = errors.New("auth: signature verification failed")
	ErrStaleNonce   = errors.New("auth: nonce outside freshness window")
	ErrReplay       = errors.New("auth: nonce already used")
)

// Ledger is the slice of the database facade the verifier needs.
type Ledger interface {
	GetPublicKey(publicHash []byte) ([]byte, error)
	CheckAndAddNonce(nonce types.Nonce, publicKey []byte) bool
}

// PublicHash digests a public key into the user's stable server-side
// identifier.
func PublicHash(publicKey []byte) []byte {
	digest := sha3.Sum256(publicKey)
	return digest[:]
}

// SignaturePayload builds the canonical byte string a request signature
// covers: the operation name and each field, every part preceded by its
// 4-byte big-endian length so no two field sequences collide.
func SignaturePayload(operation string, fields ...[]byte) []byte {
	size := 4 + len(operation)
	for _, field := range fields {
		size += 4 + len(field)
	}
	payload := make([]byte, 0, size)
	payload = appendFramed(payload, []byte(operation))
	for _, field := range fields {
		payload = appendFramed(payload, field)
	}
	return payload
}

func appendFramed(dst, part []byte) []byte {
	var frame [4]byte
	binary.BigEndian.PutUint32(frame[:], uint32(len(part)))
	dst = append(dst, frame[:]...)
	return append(dst, part...)
}

// Sign produces the signature for a request. Used by tests; real clients
// sign on their side of the wire.
func Sign(privateKey ed25519.PrivateKey, nonce types.Nonce, operation string, fields ...[]byte) []byte {
	message := append(nonce.Token(), SignaturePayload(operation, fields...)...)
	return ed25519.Sign(privateKey, message)
}

type Verifier struct {
	ledger Ledger
	clock  database.Clock
	window time.Duration
	log    *logrus.Logger
}

type VerifierConfig struct {
	// Window bounds how far a nonce timestamp may drift from server time.
	Window time.Duration
	Clock  database.Clock
	Logger *logrus.Logger
}

func NewVerifier(ledger Ledger, conf VerifierConfig) *Verifier {
	if conf.Clock == nil {
		conf.Clock = database.SystemClock{}
	}
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}
	return &Verifier{
		ledger: ledger,
		clock:  conf.Clock,
		window: conf.Window,
		log:    conf.Logger,
	}
}

// VerifyWithKey authenticates a request against an explicit public key. The
// registration request must use this form: the key is not in the registry
// yet.
func (v *Verifier) VerifyWithKey(publicKey, nonceToken, signature []byte, operation string, fields ...[]byte) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad public key length %d", ErrBadSignature, len(publicKey))
	}

	nonce, err := types.ParseNonceToken(nonceToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	drift := v.clock.Now().Sub(nonce.Time())
	if drift < 0 {
		drift = -drift
	}
	if drift > v.window {
		return ErrStaleNonce
	}

	message := append(nonce.Token(), SignaturePayload(operation, fields...)...)
	if !ed25519.Verify(ed25519.PublicKey(publicKey), message, signature) {
		return ErrBadSignature
	}

	if !v.ledger.CheckAndAddNonce(nonce, publicKey) {
		return ErrReplay
	}
	return nil
}

// VerifyRequest authenticates a request from a registered user, resolving
// the signing key through the registry by its hash.
func (v *Verifier) VerifyRequest(publicHash, nonceToken, signature []byte, operation string, fields ...[]byte) error {
	publicKey, err := v.ledger.GetPublicKey(publicHash)
	if err != nil {
		return ErrUnknownUser
	}
	return v.VerifyWithKey(publicKey, nonceToken, signature, operation, fields...)
}
