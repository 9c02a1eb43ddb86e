package database

// On-disk key layout. All keys are raw byte concatenations joined by a
// single '/' separator; nothing is escaped, so uniqueness relies on the
// position and length of the fixed components.
//
//	users                              - roster, members: public hashes
//	users/<public_hash>/date           - 8-byte big-endian unix-ms registration time
//	users/<public_hash>/key            - raw public key
//	stores/<public_hash>               - index set, members: index bytes
//	stores/<public_hash>/<index>       - revision set, members: revision bytes
//	stores/<public_hash>/<index>/<rev> - value blob
//	users/nonces/<public_key>          - replay ledger, members: nonce tokens
var (
	usersKey     = []byte("users")
	separator    = []byte("/")
	dateSuffix   = []byte("date")
	keySuffix    = []byte("key")
	storesPrefix = []byte("stores/")
	noncesPrefix = []byte("users/nonces/")
)

func makeBytes(parts ...[]byte) []byte {
	length := 0
	for _, part := range parts {
		length += len(part)
	}
	out := make([]byte, 0, length)
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}

func regDateKey(publicHash []byte) []byte {
	return makeBytes(usersKey, separator, publicHash, separator, dateSuffix)
}

func publicKeyKey(publicHash []byte) []byte {
	return makeBytes(usersKey, separator, publicHash, separator, keySuffix)
}

func storesKey(publicHash []byte) []byte {
	return makeBytes(storesPrefix, publicHash)
}

func lookupKey(publicHash, index []byte) []byte {
	return makeBytes(storesPrefix, publicHash, separator, index)
}

func valueKey(publicHash, index, revision []byte) []byte {
	return makeBytes(storesPrefix, publicHash, separator, index, separator, revision)
}

func noncesKey(publicKey []byte) []byte {
	return makeBytes(noncesPrefix, publicKey)
}
