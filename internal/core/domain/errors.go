package domain

import "errors"

var (
	// ErrLockContended is returned when another run holds the sync scope
	// lock. The caller should not retry immediately.
	ErrLockContended = errors.New("sync lock contended")

	// ErrAlreadyRunning is returned when a cursor with a fresh heartbeat
	// exists for the scope, meaning another orchestrator is live.
	ErrAlreadyRunning = errors.New("sync already running")

	// ErrStaleWrite marks an update the ledger rejected as out of order.
	// It is an expected outcome, not a failure.
	ErrStaleWrite = errors.New("stale write dropped")

	// ErrMalformedEvent marks an unparseable platform callback.
	ErrMalformedEvent = errors.New("malformed event payload")

	ErrDealNotFound       = errors.New("deal not found")
	ErrConnectionNotFound = errors.New("business connection not found")
	ErrSyncJobNotFound    = errors.New("sync job not found")
)
