package wire

import "github.com/btcsuite/btclog"

// log is this package's subsystem logger. It is disabled until UseLogger
// installs a real backend, matching every other subsystem in the daemon
// this module is extracted from.
var log btclog.Logger

func init() {
	UseLogger(btclog.Disabled)
}

// UseLogger sets the package-wide logger used by this subsystem.
func UseLogger(logger btclog.Logger) {
	log = logger
}
