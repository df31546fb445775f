package domain

import "time"

// LoopState is the persisted bookkeeping row for one named background
// loop: when it last ran, when it's due next, whether it is enabled, and
// how many times in a row it has failed. pkg/scheduler claims a loop by
// compare-and-swapping this row so at most one process instance ever runs
// a given loop concurrently.
type LoopState struct {
	Name              string
	Enabled           bool
	LastRunAt         *time.Time
	NextRunAt         time.Time
	ConsecutiveFails  int
	LastError         string
	ClaimedAt         *time.Time // non-nil while a run is in flight
	ClaimToken        string     // random token proving ownership of the in-flight claim
}
