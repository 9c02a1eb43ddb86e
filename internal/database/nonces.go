package database

import (
	"github.com/sirupsen/logrus"

	"github.com/asweigart123/nigori/pkg/types"
)

// CheckAndAddNonce atomically probes the replay ledger for the nonce and
// records it when unseen. Returns true exactly once for any (public key,
// nonce) pair; replays and storage failures return false.
func (d *Database) CheckAndAddNonce(nonce types.Nonce, publicKey []byte) bool {
	txn := d.store.Begin()
	defer txn.Discard()

	ledger := noncesKey(publicKey)
	token := nonce.Token()

	seen, err := txn.HasDup(ledger, token)
	if err != nil {
		d.severe("CheckAndAddNonce", err, nil)
		return false
	}
	if seen {
		// Nonce already used
		if err := txn.Commit(); err != nil {
			d.severe("CheckAndAddNonce", err, nil)
		}
		if d.metrics != nil {
			d.metrics.NoncesRejectedTotal.Inc()
		}
		return false
	}

	if err := txn.AddDup(ledger, token); err != nil {
		d.severe("CheckAndAddNonce", err, nil)
		return false
	}
	if err := txn.Commit(); err != nil {
		d.severe("CheckAndAddNonce", err, nil)
		return false
	}
	if d.metrics != nil {
		d.metrics.NoncesAcceptedTotal.Inc()
	}
	return true
}

// ClearOldNonces sweeps the whole replay ledger and removes tokens whose
// embedded timestamp is older than the nonce TTL. Tokens that do not parse
// are removed as well; they can never be replayed in a valid request.
func (d *Database) ClearOldNonces() error {
	cutoff := d.clock.Now().Add(-d.nonceTTL)

	txn := d.store.Begin()
	defer txn.Discard()

	rows, err := txn.Keys(noncesPrefix)
	if err != nil {
		d.severe("ClearOldNonces", err, nil)
		return err
	}

	purged := 0
	for _, row := range rows {
		token, ok := splitNonceRow(row)
		if ok {
			nonce, err := types.ParseNonceToken(token)
			if err == nil && !nonce.Time().Before(cutoff) {
				continue
			}
		}
		if err := txn.Delete(row); err != nil {
			d.severe("ClearOldNonces", err, nil)
			return err
		}
		purged++
	}

	if err := txn.Commit(); err != nil {
		d.severe("ClearOldNonces", err, nil)
		return err
	}
	if purged > 0 {
		if d.metrics != nil {
			d.metrics.NoncesPurgedTotal.Add(float64(purged))
		}
		d.log.WithFields(logrus.Fields{"purged": purged}).Info("cleared expired nonces")
	}
	return nil
}

// splitNonceRow extracts the token from a physical ledger row, which has the
// shape users/nonces/<public_key> ++ 0x00 ++ token.
func splitNonceRow(row []byte) ([]byte, bool) {
	boundary := len(row) - types.NonceTokenLength - 1
	if boundary < len(noncesPrefix) || row[boundary] != 0x00 {
		return nil, false
	}
	return row[boundary+1:], true
}
