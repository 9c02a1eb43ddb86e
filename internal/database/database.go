// Package database maps the user registry, the multi-revision record store
// and the nonce replay ledger onto the flat byte store. Every public
// operation runs in its own transaction and either commits all of its steps
// or leaves no visible state behind.
package database

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asweigart123/nigori/internal/keyvalstore"
	"github.com/asweigart123/nigori/internal/metrics"
)

// ErrUserNotFound is returned by lookups on an unregistered public hash.
var ErrUserNotFound = errors.New("database: user not found")

// Clock supplies the current time for registration stamps and nonce expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type Config struct {
	// NonceTTL is how long a nonce stays in the replay ledger before
	// ClearOldNonces may remove it.
	NonceTTL time.Duration
	Clock    Clock
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
}

type Database struct {
	store    *keyvalstore.Store
	log      *logrus.Logger
	clock    Clock
	nonceTTL time.Duration
	metrics  *metrics.Metrics
}

func New(store *keyvalstore.Store, conf Config) *Database {
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}
	if conf.Clock == nil {
		conf.Clock = SystemClock{}
	}
	return &Database{
		store:    store,
		log:      conf.Logger,
		clock:    conf.Clock,
		nonceTTL: conf.NonceTTL,
		metrics:  conf.Metrics,
	}
}

// severe logs a storage failure with operation context. Payload bytes and
// keys are never logged, only hash prefixes supplied by the caller.
func (d *Database) severe(operation string, err error, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["operation"] = operation
	d.log.WithFields(fields).Errorf("storage failure: %v", err)
}

// hashPrefix renders the first bytes of a hash for log context.
func hashPrefix(hash []byte) string {
	const n = 4
	if len(hash) < n {
		return hex.EncodeToString(hash)
	}
	return hex.EncodeToString(hash[:n])
}
