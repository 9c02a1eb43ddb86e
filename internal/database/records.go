package database

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/asweigart123/nigori/internal/keyvalstore"
	"github.com/asweigart123/nigori/pkg/types"
)

// PutRecord stores value under (user, index, revision). Revisions are
// immutable: a second put with the same revision bytes returns false and
// leaves the first value untouched.
func (d *Database) PutRecord(user types.User, index, revision, value []byte) bool {
	fields := logrus.Fields{"user": hashPrefix(user.PublicHash)}
	txn := d.store.Begin()
	defer txn.Discard()

	stores := storesKey(user.PublicHash)
	indexKnown, err := txn.HasDup(stores, index)
	if err != nil {
		d.severe("PutRecord", err, fields)
		return false
	}
	if !indexKnown {
		if err := txn.AddDup(stores, index); err != nil {
			d.severe("PutRecord", err, fields)
			return false
		}
	}

	lookup := lookupKey(user.PublicHash, index)
	revisionExists, err := txn.HasDup(lookup, revision)
	if err != nil {
		d.severe("PutRecord", err, fields)
		return false
	}
	if revisionExists {
		// already exists, abort
		return false
	}

	if err := txn.AddDup(lookup, revision); err != nil {
		d.severe("PutRecord", err, fields)
		return false
	}
	if err := txn.Set(valueKey(user.PublicHash, index, revision), value); err != nil {
		d.severe("PutRecord", err, fields)
		return false
	}

	if err := txn.Commit(); err != nil {
		d.severe("PutRecord", err, fields)
		return false
	}
	return true
}

// GetRecord returns every (revision, value) pair stored under the index, in
// lexicographic revision order. Returns nil when the index does not exist. A
// revision whose value row is missing is skipped rather than failing the
// whole read.
func (d *Database) GetRecord(user types.User, index []byte) ([]types.RevValue, error) {
	txn := d.store.BeginRead()
	defer txn.Discard()

	indexKnown, err := txn.HasDup(storesKey(user.PublicHash), index)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	if !indexKnown {
		return nil, nil
	}

	collection := make([]types.RevValue, 0)
	cursor := txn.Dups(lookupKey(user.PublicHash, index))
	defer cursor.Close()
	for ok := cursor.First(); ok; ok = cursor.Next() {
		revision := cursor.Member()
		value, err := txn.Get(valueKey(user.PublicHash, index, revision))
		if err != nil {
			if err == keyvalstore.ErrNotFound {
				// revision exists but value does not; skip the orphan
				continue
			}
			return nil, fmt.Errorf("getting record value: %w", err)
		}
		collection = append(collection, types.RevValue{Revision: revision, Value: value})
	}
	return collection, nil
}

// GetRevision returns the value stored at one exact revision, or nil when it
// does not exist.
func (d *Database) GetRevision(user types.User, index, revision []byte) (*types.RevValue, error) {
	txn := d.store.BeginRead()
	defer txn.Discard()

	value, err := txn.Get(valueKey(user.PublicHash, index, revision))
	if err != nil {
		if err == keyvalstore.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting revision: %w", err)
	}
	return &types.RevValue{Revision: revision, Value: value}, nil
}

// GetIndices returns every index the user has stored under, possibly empty.
func (d *Database) GetIndices(user types.User) ([][]byte, error) {
	txn := d.store.BeginRead()
	defer txn.Discard()

	indices, err := txn.DupMembers(storesKey(user.PublicHash))
	if err != nil {
		return nil, fmt.Errorf("getting indices: %w", err)
	}
	if indices == nil {
		indices = [][]byte{}
	}
	return indices, nil
}

// GetRevisions returns the revision bytes stored under the index, or nil
// when there are none.
func (d *Database) GetRevisions(user types.User, index []byte) ([][]byte, error) {
	txn := d.store.BeginRead()
	defer txn.Discard()

	revisions, err := txn.DupMembers(lookupKey(user.PublicHash, index))
	if err != nil {
		return nil, fmt.Errorf("getting revisions: %w", err)
	}
	if len(revisions) == 0 {
		return nil, nil
	}
	return revisions, nil
}

// DeleteRecord removes the index and every revision and value under it.
// Returns true if anything was removed.
func (d *Database) DeleteRecord(user types.User, index []byte) bool {
	fields := logrus.Fields{"user": hashPrefix(user.PublicHash)}
	txn := d.store.Begin()
	defer txn.Discard()

	found, err := txn.DeleteDup(storesKey(user.PublicHash), index)
	if err != nil {
		d.severe("DeleteRecord", err, fields)
		return false
	}

	didWork, err := d.deleteRevisions(txn, user.PublicHash, index)
	if err != nil {
		d.severe("DeleteRecord", err, fields)
		return false
	}

	if err := txn.Commit(); err != nil {
		d.severe("DeleteRecord", err, fields)
		return false
	}
	return found || didWork
}

// deleteRevisions removes every revision member and its value row under one
// index, reporting whether anything was removed.
func (d *Database) deleteRevisions(txn *keyvalstore.Txn, publicHash, index []byte) (bool, error) {
	lookup := lookupKey(publicHash, index)
	revisions, err := txn.DupMembers(lookup)
	if err != nil {
		return false, err
	}
	didWork := false
	for _, revision := range revisions {
		if err := txn.Delete(valueKey(publicHash, index, revision)); err != nil {
			return false, err
		}
		if _, err := txn.DeleteDup(lookup, revision); err != nil {
			return false, err
		}
		didWork = true
	}
	return didWork, nil
}
