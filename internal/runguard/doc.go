// Package runguard keeps at most one orchestrator run active on a host and
// carries the operator's halt request between runs.
//
// The run lock is an exclusive flock on the configured lock file. The kernel
// drops the lock when the holding process exits, so a crashed run never
// blocks the next one. After acquisition the holder writes an owner record
// (pid, host, run id, start and heartbeat times) into the lock file and
// refreshes the heartbeat until the handle is released; `dayrun status` uses
// it to report who holds the lock and whether that holder looks stale.
//
// The stop marker is a plain file. Its presence is checked between days
// only; WatchStop merely reports a halt request while a day is running.
package runguard
