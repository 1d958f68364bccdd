package backup

import (
	"os"
	"time"

	"github.com/lightningnetwork/lnd/healthcheck"
)

// NewHealthObservation builds a healthcheck.Observation that periodically
// confirms the backup file at path is still writable, the same role the
// daemon's healthcheck package plays for its other critical external
// dependencies (chain backend, wallet, disk). A failure here should be
// treated the same way a write failure during Append is: fatal to the
// process, since the write contract cannot be honored if the file stops
// accepting writes.
func NewHealthObservation(path string, interval, timeout, backoff time.Duration, retries int) *healthcheck.Observation {
	check := func() error {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		return f.Close()
	}

	return healthcheck.NewObservation(
		"backup log writable", check, interval, timeout, backoff, retries,
	)
}
