package alice

import "github.com/btcsuite/btclog"

// log is the subsystem logger for the swap/alice state machine. It's
// disabled by default; the daemon's logging setup binds a live backend
// via UseLogger, following every other package's convention.
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by package alice.
func UseLogger(logger btclog.Logger) {
	log = logger
}
