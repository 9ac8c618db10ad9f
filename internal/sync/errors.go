package sync

import "errors"

var (
	// ErrMissingConfiguration means a channel has no target calendar or
	// owning user and can never make progress.
	ErrMissingConfiguration = errors.New("sync: channel missing required configuration")

	// ErrCoordinationRunaway means the round-robin exceeded its iteration
	// or wall-clock budget. This is a fatal abort, never a retry.
	ErrCoordinationRunaway = errors.New("sync: coordination exceeded safety bounds")

	// ErrAllChannelsFailed means every channel of a user ended failed;
	// the run must not be reported as a success.
	ErrAllChannelsFailed = errors.New("sync: all channels failed")

	// errCoordinationSettled stops an advance against an already
	// terminal coordination record. Internal: callers see a no-op.
	errCoordinationSettled = errors.New("sync: coordination already settled")
)
