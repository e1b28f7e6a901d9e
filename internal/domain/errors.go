package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLookup is the parent of the errors returned when an id cannot be run.
	ErrLookup = errors.New("lookup failed")
	// ErrNotFound is returned when the id is not in the published tree.
	ErrNotFound = fmt.Errorf("%w: id not found", ErrLookup)
	// ErrNotALeaf is returned when the id names a node instead of a runnable.
	ErrNotALeaf = fmt.Errorf("%w: id is not a runnable", ErrLookup)
	// ErrNotExecutable is returned for runnables that cannot be spawned directly.
	ErrNotExecutable = fmt.Errorf("%w: runnable is not executable", ErrLookup)
	// ErrAmbiguousID is returned when an id prefix matches more than one node.
	ErrAmbiguousID = fmt.Errorf("%w: ambiguous id prefix", ErrLookup)

	ErrAlreadyRunning = errors.New("already running")
	ErrSpawn          = errors.New("spawn failed")
	ErrNonZeroExit    = errors.New("non-zero exit")
	ErrSignaled       = errors.New("terminated by signal")
	ErrTimeout        = errors.New("timed out")

	// ErrRunFailed is returned by a run in which any runnable failed or errored.
	ErrRunFailed = errors.New("run failed")
	// ErrNoShards is returned when merging a directory without shard reports.
	ErrNoShards = errors.New("no shard reports found")
)
