package worker

import (
	"errors"
	"strings"
)

// ErrNotOperational is matched by errors.Is for every not-operational error.
var ErrNotOperational = errors.New("worker not operational")

// StartupError reports a process that never reached the ready state.
type StartupError struct {
	WorkerID string
	Reason   string
	// Tail holds the last stderr lines seen before the failure.
	Tail []string
	Err  error
}

func (e *StartupError) Error() string {
	var b strings.Builder
	b.WriteString("worker ")
	b.WriteString(e.WorkerID)
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Tail) > 0 {
		b.WriteString("; stderr tail: ")
		b.WriteString(strings.Join(e.Tail, " | "))
	}
	return b.String()
}

func (e *StartupError) Unwrap() error { return e.Err }

// IsStartupFailure reports whether err came from a failed Spawn.
func IsStartupFailure(err error) bool {
	var se *StartupError
	return errors.As(err, &se)
}

type notOperationalError struct {
	id    string
	cause error
}

func (e notOperationalError) Error() string {
	if e.cause != nil {
		return "worker " + e.id + " not operational: " + e.cause.Error()
	}
	return "worker " + e.id + " not operational"
}

func (e notOperationalError) Unwrap() error { return e.cause }

func (e notOperationalError) Is(target error) bool { return target == ErrNotOperational }

// IsNotOperational reports whether err means the worker cannot take prompts.
func IsNotOperational(err error) bool { return errors.Is(err, ErrNotOperational) }
