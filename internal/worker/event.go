package worker

import "sync"

// Source names the standard stream an event was read from.
type Source string

const (
	SourceStdout Source = "stdout"
	SourceStderr Source = "stderr"
)

// EventKind tags an Event.
type EventKind int

const (
	StdoutLine EventKind = iota
	StderrLine
	EOF
	ReaderError
)

func (k EventKind) String() string {
	switch k {
	case StdoutLine:
		return "stdout_line"
	case StderrLine:
		return "stderr_line"
	case EOF:
		return "eof"
	case ReaderError:
		return "reader_error"
	default:
		return "unknown"
	}
}

// Event is one item on a worker's output channel. Line is set for StdoutLine
// and StderrLine, Err for ReaderError.
type Event struct {
	Source Source
	Kind   EventKind
	Line   string
	Err    error
}

// Terminal reports whether the event ends its stream.
func (e Event) Terminal() bool { return e.Kind == EOF || e.Kind == ReaderError }

// controlSignal is a one-shot flag that can also be waited on.
type controlSignal struct {
	once sync.Once
	ch   chan struct{}
}

func newControlSignal() *controlSignal { return &controlSignal{ch: make(chan struct{})} }

func (s *controlSignal) Set() { s.once.Do(func() { close(s.ch) }) }

func (s *controlSignal) IsSet() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

func (s *controlSignal) Done() <-chan struct{} { return s.ch }
