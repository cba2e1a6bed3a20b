package pool

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned once Shutdown has run.
	ErrClosed = errors.New("pool closed")
	// ErrNotStarted is returned by Acquire before Start succeeded.
	ErrNotStarted = errors.New("pool not started")
	// ErrUnknownWorker is returned by Release for a worker the pool has not lent out.
	ErrUnknownWorker = errors.New("worker not held by pool")
	// ErrExhausted is returned when every worker failed to be replaced.
	ErrExhausted = errors.New("pool has no workers left")
)

type tooBusyError struct {
	waited time.Duration
}

func (e tooBusyError) Error() string {
	return fmt.Sprintf("no worker free after %s", e.waited)
}

// IsTooBusy reports whether Acquire gave up because of AcquireTimeout.
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}
