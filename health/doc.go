// Package health reports whether the backends behind a pipeline are
// reachable.
//
// Checks return a Status rather than an error so they can be combined and
// rendered directly:
//
//	overall := health.Combine(
//	    health.StoreCheck(ctx, s),
//	    health.PingCheck(ctx, "lock", etcdLocker),
//	)
//	if overall.IsUnhealthy() {
//	    log.Printf("unhealthy: %s %v", overall.Message, overall.Details)
//	}
//
// # Status Priority
//
// Combine returns the worst status it sees: unhealthy beats degraded,
// degraded beats healthy.
//
// # Context and Timeouts
//
// PingCheck and StoreCheck accept a context for timeout and cancellation.
// If nil is passed, a default 5-second timeout is used.
package health
