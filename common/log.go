package common

import "github.com/btcsuite/btclog"

// log is the subsystem logger for the common package. It's disabled by
// default; the daemon's logging setup calls UseLogger to bind a live
// backend, matching the convention every lnd package follows.
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by the common package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
