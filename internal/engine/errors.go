package engine

import "errors"

// Sentinel errors for the load cycle.
var (
	// ErrLoadInProgress is returned when a load cycle is requested while
	// another one is running. Overlapping cycles are rejected, not queued.
	ErrLoadInProgress = errors.New("load cycle already in progress")

	// ErrStoreWrite marks a failure to persist the new snapshot. The
	// previous snapshot remains active.
	ErrStoreWrite = errors.New("store write failed")

	// ErrIndexBuild marks a failure to build or persist the new index. The
	// previous snapshot and index remain active.
	ErrIndexBuild = errors.New("index build failed")
)
