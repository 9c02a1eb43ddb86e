// Package nigori is the server-side persistence core of a zero-knowledge,
// end-to-end encrypted key-value datastore. Clients store opaque byte blobs
// at opaque byte indices; each index holds a set of immutable revisions and
// the server never merges. The package composes the user registry, the
// multi-revision record store and the nonce replay ledger behind a single
// transactional facade.
package nigori

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/asweigart123/nigori/internal/database"
	"github.com/asweigart123/nigori/internal/keyvalstore"
	"github.com/asweigart123/nigori/internal/metrics"
	"github.com/asweigart123/nigori/pkg/types"
)

// ErrUserNotFound is returned by lookups on an unregistered public hash.
var ErrUserNotFound = database.ErrUserNotFound

// The embedded store forbids two opens of the same data directory in one
// process, so live instances are shared through a reference-counted map
// keyed by absolute path.
var (
	instancesMu sync.Mutex
	instances   = make(map[string]*DB)
)

// DB is the database facade. It owns the byte store and the lifecycle of
// the maintenance goroutines.
type DB struct {
	log    *logrus.Logger
	config Config

	dir      string
	store    *keyvalstore.Store
	db       *database.Database
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	refs   int
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// Open returns the live instance for the data directory, creating it when
// none exists. A second Open of the same directory returns the existing
// instance after syncing its store; if the sync fails the instance is
// replaced. Every Open must be paired with a Close.
func Open(conf Config) (*DB, error) {
	if err := conf.checkConfig(); err != nil {
		return nil, err
	}
	conf.withDefaults()

	dir, err := filepath.Abs(conf.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}

	instancesMu.Lock()
	defer instancesMu.Unlock()

	if existing, ok := instances[dir]; ok {
		if err := existing.store.Sync(); err == nil {
			existing.refs++
			return existing, nil
		}
		// No longer valid
		existing.log.Errorf("live instance failed to sync, replacing it")
		existing.shutdown()
		delete(instances, dir)
	}

	db, err := newDB(conf, dir)
	if err != nil {
		return nil, err
	}
	instances[dir] = db
	return db, nil
}

func newDB(conf Config, dir string) (*DB, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	store, err := keyvalstore.NewStore(keyvalstore.StoreConfig{
		Path:          dir,
		MinimumFreeGB: conf.MinimumFreeGB,
		SyncWrites:    conf.SyncWrites,
		Logger:        conf.Logger,
		Metrics:       m,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	db := &DB{
		log:    conf.Logger,
		config: conf,
		dir:    dir,
		store:  store,
		db: database.New(store, database.Config{
			NonceTTL: conf.NonceTTL,
			Clock:    conf.Clock,
			Logger:   conf.Logger,
			Metrics:  m,
		}),
		metrics:  m,
		registry: registry,
		refs:     1,
		stop:     make(chan struct{}),
	}

	if conf.NoncePurgeInterval > 0 {
		db.wg.Add(1)
		go db.noncePurgeLoop(conf.NoncePurgeInterval)
	}
	if conf.GCInterval > 0 {
		db.wg.Add(1)
		go db.gcLoop(conf.GCInterval)
	}
	return db, nil
}

func (d *DB) noncePurgeLoop(interval time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := d.db.ClearOldNonces(); err != nil {
				d.log.Errorf("nonce purge failed: %v", err)
			}
		case <-d.stop:
			return
		}
	}
}

func (d *DB) gcLoop(interval time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := d.store.RunValueLogGC(); err != nil {
				d.log.Errorf("value log GC failed: %v", err)
			}
		case <-d.stop:
			return
		}
	}
}

// Close releases one reference. The last Close stops the maintenance
// goroutines and closes the store.
func (d *DB) Close() error {
	instancesMu.Lock()
	defer instancesMu.Unlock()

	if d.closed {
		return nil
	}
	d.refs--
	if d.refs > 0 {
		return nil
	}
	if instances[d.dir] == d {
		delete(instances, d.dir)
	}
	return d.shutdown()
}

// shutdown stops the instance unconditionally. Callers hold instancesMu.
func (d *DB) shutdown() error {
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.stop)
	d.wg.Wait()
	return d.store.Close()
}

// Registry exposes the instance's metric registry for scraping.
func (d *DB) Registry() *prometheus.Registry {
	return d.registry
}

// Metrics exposes the instance's metric handles for instrumentation.
func (d *DB) Metrics() *metrics.Metrics {
	return d.metrics
}

// AddUser registers a public key under its hash. Returns false when the
// hash is already registered.
func (d *DB) AddUser(publicKey, publicHash []byte) bool {
	return d.db.AddUser(publicKey, publicHash)
}

// HaveUser reports whether the public hash is registered.
func (d *DB) HaveUser(publicHash []byte) bool {
	return d.db.HaveUser(publicHash)
}

// GetUser returns the registered user for a public hash, or ErrUserNotFound.
func (d *DB) GetUser(publicHash []byte) (types.User, error) {
	return d.db.GetUser(publicHash)
}

// GetPublicKey returns the raw public key registered under a hash, or
// ErrUserNotFound.
func (d *DB) GetPublicKey(publicHash []byte) ([]byte, error) {
	return d.db.GetPublicKey(publicHash)
}

// DeleteUser removes the user and everything stored under them in one
// transaction.
func (d *DB) DeleteUser(user types.User) bool {
	return d.db.DeleteUser(user)
}

// PutRecord stores value at (user, index, revision). A second put with the
// same revision bytes returns false.
func (d *DB) PutRecord(user types.User, index, revision, value []byte) bool {
	return d.db.PutRecord(user, index, revision, value)
}

// GetRecord returns all revisions under the index, or nil when the index
// does not exist.
func (d *DB) GetRecord(user types.User, index []byte) ([]types.RevValue, error) {
	return d.db.GetRecord(user, index)
}

// GetRevision returns one exact revision, or nil when it does not exist.
func (d *DB) GetRevision(user types.User, index, revision []byte) (*types.RevValue, error) {
	return d.db.GetRevision(user, index, revision)
}

// GetIndices returns every index the user has stored under, possibly empty.
func (d *DB) GetIndices(user types.User) ([][]byte, error) {
	return d.db.GetIndices(user)
}

// GetRevisions returns the revisions stored under the index, or nil when
// there are none.
func (d *DB) GetRevisions(user types.User, index []byte) ([][]byte, error) {
	return d.db.GetRevisions(user, index)
}

// DeleteRecord removes the index and every revision under it.
func (d *DB) DeleteRecord(user types.User, index []byte) bool {
	return d.db.DeleteRecord(user, index)
}

// CheckAndAddNonce returns true exactly once for any (public key, nonce)
// pair.
func (d *DB) CheckAndAddNonce(nonce types.Nonce, publicKey []byte) bool {
	return d.db.CheckAndAddNonce(nonce, publicKey)
}

// ClearOldNonces removes replay-ledger entries older than the nonce TTL. It
// also runs periodically on the purge ticker.
func (d *DB) ClearOldNonces() error {
	return d.db.ClearOldNonces()
}
