package keyvalstore

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/asweigart123/nigori/internal/metrics"
)

// ErrNotFound is returned by point reads on a missing key.
var ErrNotFound = errors.New("keyvalstore: key not found")

// dupSeparator marks the boundary between a duplicate-set key and one of its
// members in the physical key space.
const dupSeparator = 0x00

type StoreConfig struct {
	Path             string // absolute path of the data directory
	MinimumFreeGB    int    // free-space threshold, 0 disables the check
	SyncWrites       bool
	Logger           *logrus.Logger
	Metrics          *metrics.Metrics
	ValueLogFileSize int64 // 0 uses the default of 100MB
}

type Store struct {
	config   StoreConfig
	badgerDB *badger.DB
	metrics  *metrics.Metrics
	log      *logrus.Logger
}

func NewStore(config StoreConfig) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for store: %w", err)
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	} else {
		opts.ValueLogFileSize = 1024 * 1024 * 100
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening store at %s: %w", config.Path, err)
	}

	return &Store{
		config:   config,
		badgerDB: db,
		metrics:  config.Metrics,
		log:      config.Logger,
	}, nil
}

// Begin opens a read-write serializable transaction. The caller must finish
// it with Commit or Discard; deferring Discard on all paths is safe because
// Discard after Commit is a no-op.
func (s *Store) Begin() *Txn {
	return &Txn{txn: s.badgerDB.NewTransaction(true), store: s, update: true}
}

// BeginRead opens a read-only transaction. Read-only transactions may hold
// any number of concurrent cursors.
func (s *Store) BeginRead() *Txn {
	return &Txn{txn: s.badgerDB.NewTransaction(false), store: s}
}

// Sync flushes the store to disk. Used to probe that a shared instance is
// still healthy before handing it out again.
func (s *Store) Sync() error {
	return s.badgerDB.Sync()
}

func (s *Store) Close() error {
	return s.badgerDB.Close()
}

// Clean compacts the store and reclaims value-log space.
func (s *Store) Clean() error {
	err := s.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	err = s.badgerDB.Flatten(runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}

	err = s.badgerDB.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("error running value log GC: %w", err)
	}

	return nil
}

// RunValueLogGC reclaims value-log space if enough is stale. ErrNoRewrite is
// not an error.
func (s *Store) RunValueLogGC() error {
	err := s.badgerDB.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite {
		return err
	}
	return nil
}

type Txn struct {
	txn    *badger.Txn
	store  *Store
	update bool
	done   bool
}

func (t *Txn) countRead() {
	if t.store.metrics != nil {
		t.store.metrics.StoreReadsTotal.Inc()
	}
}

func (t *Txn) countWrite() {
	if t.store.metrics != nil {
		t.store.metrics.StoreWritesTotal.Inc()
	}
}

// Get reads a single-value row. Returns ErrNotFound when the key is absent.
func (t *Txn) Get(key []byte) ([]byte, error) {
	t.countRead()
	item, err := t.txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Has reports whether a single-value row exists.
func (t *Txn) Has(key []byte) (bool, error) {
	t.countRead()
	_, err := t.txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Set writes a single-value row, replacing any previous value.
func (t *Txn) Set(key, value []byte) error {
	t.countWrite()
	return t.txn.Set(key, value)
}

// Delete removes a single-value row. Deleting an absent key succeeds.
func (t *Txn) Delete(key []byte) error {
	t.countWrite()
	return t.txn.Delete(key)
}

func dupKey(key, member []byte) []byte {
	out := make([]byte, 0, len(key)+1+len(member))
	out = append(out, key...)
	out = append(out, dupSeparator)
	out = append(out, member...)
	return out
}

func dupPrefix(key []byte) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, key...)
	out = append(out, dupSeparator)
	return out
}

// AddDup inserts member into the duplicate set of key. Re-inserting an
// existing member is a successful no-op.
func (t *Txn) AddDup(key, member []byte) error {
	t.countWrite()
	return t.txn.Set(dupKey(key, member), nil)
}

// HasDup probes for an exact member of key's duplicate set.
func (t *Txn) HasDup(key, member []byte) (bool, error) {
	t.countRead()
	_, err := t.txn.Get(dupKey(key, member))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteDup removes one member from key's duplicate set. Returns false when
// the member was not present.
func (t *Txn) DeleteDup(key, member []byte) (bool, error) {
	found, err := t.HasDup(key, member)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	t.countWrite()
	if err := t.txn.Delete(dupKey(key, member)); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteDups removes all of key's duplicate members, returning how many
// members were removed. A single-value row stored at key itself is not
// touched.
func (t *Txn) DeleteDups(key []byte) (int, error) {
	members, err := t.DupMembers(key)
	if err != nil {
		return 0, err
	}
	for _, member := range members {
		t.countWrite()
		if err := t.txn.Delete(dupKey(key, member)); err != nil {
			return 0, err
		}
	}
	return len(members), nil
}

// DupMembers collects all members of key's duplicate set in lexicographic
// order. The cursor it walks is closed before returning, so DupMembers is
// safe inside read-write transactions, which allow only one live cursor.
func (t *Txn) DupMembers(key []byte) ([][]byte, error) {
	cursor := t.Dups(key)
	defer cursor.Close()

	var members [][]byte
	for ok := cursor.First(); ok; ok = cursor.Next() {
		members = append(members, cursor.Member())
	}
	return members, nil
}

// Keys collects all physical keys with the given prefix. Used by maintenance
// jobs that sweep a whole namespace.
func (t *Txn) Keys(prefix []byte) ([][]byte, error) {
	t.countRead()
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

// Dups opens a cursor over the duplicate set of key, positioned before the
// first member. The cursor must be closed before the transaction commits,
// and a read-write transaction may hold only one open cursor at a time.
func (t *Txn) Dups(key []byte) *DupCursor {
	t.countRead()
	prefix := dupPrefix(key)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	return &DupCursor{
		it:     t.txn.NewIterator(opts),
		prefix: prefix,
	}
}

func (t *Txn) Commit() error {
	err := t.txn.Commit()
	t.done = true
	if t.store.metrics != nil {
		if err == nil {
			t.store.metrics.TxnCommitsTotal.Inc()
		} else if err == badger.ErrConflict {
			t.store.metrics.TxnConflictsTotal.Inc()
		}
	}
	return err
}

func (t *Txn) Discard() {
	if t.update && !t.done && t.store.metrics != nil {
		t.store.metrics.TxnAbortsTotal.Inc()
	}
	t.done = true
	t.txn.Discard()
}

// DupCursor walks the members of one duplicate set in lexicographic order.
type DupCursor struct {
	it     *badger.Iterator
	prefix []byte
}

// First positions the cursor on the first member.
func (c *DupCursor) First() bool {
	c.it.Rewind()
	return c.it.Valid()
}

// Next advances to the next member.
func (c *DupCursor) Next() bool {
	c.it.Next()
	return c.it.Valid()
}

// Member returns a copy of the member bytes at the cursor position.
func (c *DupCursor) Member() []byte {
	key := c.it.Item().KeyCopy(nil)
	return key[len(c.prefix):]
}

func (c *DupCursor) Close() {
	c.it.Close()
}
