package database

import (
	"encoding/binary"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asweigart123/nigori/internal/keyvalstore"
	"github.com/asweigart123/nigori/pkg/types"
)

// AddUser registers a public key under its hash. Returns false when the hash
// is already registered or when any step of the registration fails; a failed
// registration leaves no partial state.
func (d *Database) AddUser(publicKey, publicHash []byte) bool {
	txn := d.store.Begin()
	defer txn.Discard()

	have, err := d.haveUser(txn, publicHash)
	if err != nil {
		d.severe("AddUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		return false
	}
	if have {
		// User already exists
		if err := txn.Commit(); err != nil {
			d.severe("AddUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		}
		return false
	}

	if err := txn.AddDup(usersKey, publicHash); err != nil {
		d.severe("AddUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		return false
	}

	regTime := make([]byte, 8)
	binary.BigEndian.PutUint64(regTime, uint64(d.clock.Now().UnixMilli()))
	if err := txn.Set(regDateKey(publicHash), regTime); err != nil {
		d.severe("AddUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		return false
	}

	if err := txn.Set(publicKeyKey(publicHash), publicKey); err != nil {
		d.severe("AddUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		return false
	}

	if err := txn.Commit(); err != nil {
		d.severe("AddUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		return false
	}
	return true
}

func (d *Database) haveUser(txn *keyvalstore.Txn, publicHash []byte) (bool, error) {
	return txn.Has(regDateKey(publicHash))
}

// HaveUser reports whether the public hash is registered.
func (d *Database) HaveUser(publicHash []byte) bool {
	txn := d.store.BeginRead()
	defer txn.Discard()

	have, err := d.haveUser(txn, publicHash)
	if err != nil {
		d.severe("HaveUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		return false
	}
	return have
}

// GetUser returns the registered user for a public hash.
func (d *Database) GetUser(publicHash []byte) (types.User, error) {
	txn := d.store.BeginRead()
	defer txn.Discard()

	regTime, err := txn.Get(regDateKey(publicHash))
	if err != nil {
		if err == keyvalstore.ErrNotFound {
			return types.User{}, ErrUserNotFound
		}
		d.severe("GetUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		return types.User{}, ErrUserNotFound
	}
	publicKey, err := txn.Get(publicKeyKey(publicHash))
	if err != nil {
		if err != keyvalstore.ErrNotFound {
			d.severe("GetUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		}
		return types.User{}, ErrUserNotFound
	}
	if len(regTime) != 8 {
		return types.User{}, ErrUserNotFound
	}
	registered := time.UnixMilli(int64(binary.BigEndian.Uint64(regTime)))
	return types.User{
		PublicKey:        publicKey,
		PublicHash:       publicHash,
		RegistrationTime: registered,
	}, nil
}

// GetPublicKey returns the raw public key registered under a hash.
func (d *Database) GetPublicKey(publicHash []byte) ([]byte, error) {
	user, err := d.GetUser(publicHash)
	if err != nil {
		return nil, err
	}
	return user.PublicKey, nil
}

// DeleteUser removes the user row, key material and all records under the
// user in one transaction. Returns false only when the roster entry for this
// hash was not found; missing ancillary rows are treated as nothing to
// delete.
func (d *Database) DeleteUser(user types.User) bool {
	txn := d.store.Begin()
	defer txn.Discard()

	publicHash := user.PublicHash
	if err := txn.Delete(regDateKey(publicHash)); err != nil {
		d.severe("DeleteUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		return false
	}
	if err := txn.Delete(publicKeyKey(publicHash)); err != nil {
		d.severe("DeleteUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		return false
	}

	found, err := txn.DeleteDup(usersKey, publicHash)
	if err != nil {
		d.severe("DeleteUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		return false
	}
	if found {
		if err := d.deleteUserData(txn, user); err != nil {
			d.severe("DeleteUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
			return false
		}
	}

	if err := txn.Commit(); err != nil {
		d.severe("DeleteUser", err, logrus.Fields{"user": hashPrefix(publicHash)})
		return false
	}
	return found
}

// deleteUserData cascades over every index of the user, removing revisions,
// values, the index set, and the user's nonce ledger.
func (d *Database) deleteUserData(txn *keyvalstore.Txn, user types.User) error {
	publicHash := user.PublicHash
	indices, err := txn.DupMembers(storesKey(publicHash))
	if err != nil {
		return err
	}
	for _, index := range indices {
		if _, err := d.deleteRevisions(txn, publicHash, index); err != nil {
			return err
		}
		if _, err := txn.DeleteDup(storesKey(publicHash), index); err != nil {
			return err
		}
	}
	if _, err := txn.DeleteDups(noncesKey(user.PublicKey)); err != nil {
		return err
	}
	return nil
}
