package engine

import "errors"

// ErrRunInProgress is returned by RunAll when another run holds the lock.
var ErrRunInProgress = errors.New("a run is already in progress")
