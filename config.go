package nigori

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asweigart123/nigori/internal/database"
)

// DefaultFreshnessWindow bounds how far a request nonce's timestamp may
// drift from server time before the request is rejected as stale.
const DefaultFreshnessWindow = 2 * time.Minute

// DefaultNonceTTL is how long accepted nonces stay in the replay ledger,
// twice the freshness window so a token expires from the ledger only after
// it can no longer pass the freshness check.
const DefaultNonceTTL = 2 * DefaultFreshnessWindow

const (
	defaultNoncePurgeInterval = 10 * time.Minute
	defaultGCInterval         = 5 * time.Minute
)

// Config configures a database instance.
type Config struct {
	// DataDir is the data directory. It must exist and be a directory.
	DataDir string
	// MinimumFreeGB is a free-space threshold checked at open. 0 disables it.
	MinimumFreeGB int
	// NonceTTL is the replay window. Defaults to DefaultNonceTTL.
	NonceTTL time.Duration
	// NoncePurgeInterval is how often expired nonces are swept from the
	// ledger. Defaults to 10 minutes; negative disables the sweeper.
	NoncePurgeInterval time.Duration
	// GCInterval is how often the store's value log is garbage collected.
	// Defaults to 5 minutes; negative disables collection.
	GCInterval time.Duration
	// SyncWrites makes every commit durable before it returns.
	SyncWrites bool
	// Logger is an optional structured logger. If nil, a stderr logger is
	// used.
	Logger *logrus.Logger
	// Clock overrides the wall clock, mainly for tests.
	Clock database.Clock
}

func (c *Config) withDefaults() {
	if c.NonceTTL == 0 {
		c.NonceTTL = DefaultNonceTTL
	}
	if c.NoncePurgeInterval == 0 {
		c.NoncePurgeInterval = defaultNoncePurgeInterval
	}
	if c.GCInterval == 0 {
		c.GCInterval = defaultGCInterval
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.Clock == nil {
		c.Clock = database.SystemClock{}
	}
}

func (c *Config) checkConfig() error {
	if c.DataDir == "" {
		return errors.New("no data directory provided in configuration")
	}
	return nil
}
