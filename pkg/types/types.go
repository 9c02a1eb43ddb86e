package types

import (
	"bytes"
	"fmt"
	"time"
)

// User is the server-side view of a registered user. The server never sees
// anything but the public key, its hash and when registration happened.
type User struct {
	PublicKey        []byte
	PublicHash       []byte
	RegistrationTime time.Time
}

func NewUser(publicKey, publicHash []byte, registrationTime time.Time) (User, error) {
	if len(publicKey) == 0 {
		return User{}, fmt.Errorf("user: public key must not be empty")
	}
	if len(publicHash) == 0 {
		return User{}, fmt.Errorf("user: public hash must not be empty")
	}
	return User{
		PublicKey:        publicKey,
		PublicHash:       publicHash,
		RegistrationTime: registrationTime,
	}, nil
}

// RevValue is one revision of the value stored under an index. Both halves
// are opaque bytes chosen by the client.
type RevValue struct {
	Revision []byte
	Value    []byte
}

func (rv RevValue) Equal(other RevValue) bool {
	return bytes.Equal(rv.Revision, other.Revision) && bytes.Equal(rv.Value, other.Value)
}
