// Package lifecycle holds the process-wide draining flag flipped on SIGINT/SIGTERM.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown marks the process as draining. /health answers 503 shutting-down
// while the flag is set so load balancers stop routing climate queries here.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

func IsShuttingDown() bool {
	return shuttingDown.Load()
}
