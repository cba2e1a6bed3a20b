package worker

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct {
	data string
	err  error
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, r.err
	}
	r.done = true
	return copy(p, r.data), nil
}

func drain(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	var out []Event
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestMultiplexerLinesThenEOF(t *testing.T) {
	ch := make(chan Event, 16)
	ctl := newControlSignal()
	m := newMultiplexer(SourceStdout, strings.NewReader("a\nb\r\nc"), ch, make(chan struct{}), ctl, zerolog.Nop())
	m.run()

	evs := drain(t, ch, 4)
	assert.Equal(t, []Event{
		{Source: SourceStdout, Kind: StdoutLine, Line: "a"},
		{Source: SourceStdout, Kind: StdoutLine, Line: "b"},
		{Source: SourceStdout, Kind: StdoutLine, Line: "c"},
		{Source: SourceStdout, Kind: EOF},
	}, evs)
	assert.True(t, ctl.IsSet())
	assert.Empty(t, ch, "EOF must be emitted once")
}

func TestMultiplexerStderrKindAndInvalidUTF8(t *testing.T) {
	ch := make(chan Event, 4)
	m := newMultiplexer(SourceStderr, strings.NewReader("bad \xff byte\n"), ch, make(chan struct{}), newControlSignal(), zerolog.Nop())
	m.run()

	evs := drain(t, ch, 2)
	assert.Equal(t, StderrLine, evs[0].Kind)
	assert.Equal(t, "bad � byte", evs[0].Line)
	assert.Equal(t, EOF, evs[1].Kind)
}

func TestMultiplexerReaderError(t *testing.T) {
	boom := errors.New("boom")
	ch := make(chan Event, 4)
	ctl := newControlSignal()
	m := newMultiplexer(SourceStdout, &failingReader{data: "x\n", err: boom}, ch, make(chan struct{}), ctl, zerolog.Nop())
	m.run()

	evs := drain(t, ch, 2)
	assert.Equal(t, "x", evs[0].Line)
	assert.Equal(t, ReaderError, evs[1].Kind)
	assert.ErrorIs(t, evs[1].Err, boom)
	assert.True(t, evs[1].Terminal())
	assert.True(t, ctl.IsSet())
}

func TestMultiplexerQuitStopsBlockedSend(t *testing.T) {
	ch := make(chan Event) // unbuffered and never read
	quit := make(chan struct{})
	ctl := newControlSignal()
	m := newMultiplexer(SourceStdout, strings.NewReader("x\ny\n"), ch, quit, ctl, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		m.run()
		close(done)
	}()
	close(quit)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("multiplexer did not observe quit")
	}
	assert.True(t, ctl.IsSet())
}

func TestMultiplexerPreservesPerStreamOrder(t *testing.T) {
	ch := make(chan Event, 64)
	quit := make(chan struct{})
	ctl := newControlSignal()
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	go newMultiplexer(SourceStdout, outR, ch, quit, ctl, zerolog.Nop()).run()
	go newMultiplexer(SourceStderr, errR, ch, quit, ctl, zerolog.Nop()).run()

	go func() {
		for _, s := range []string{"o1\n", "o2\n", "o3\n"} {
			_, _ = io.WriteString(outW, s)
		}
		_ = outW.Close()
	}()
	go func() {
		for _, s := range []string{"e1\n", "e2\n"} {
			_, _ = io.WriteString(errW, s)
		}
		_ = errW.Close()
	}()

	var out, errs []string
	eofs := 0
	for _, ev := range drain(t, ch, 7) {
		switch ev.Kind {
		case StdoutLine:
			out = append(out, ev.Line)
		case StderrLine:
			errs = append(errs, ev.Line)
		case EOF:
			eofs++
		}
	}
	require.Equal(t, 2, eofs)
	assert.Equal(t, []string{"o1", "o2", "o3"}, out)
	assert.Equal(t, []string{"e1", "e2"}, errs)
}

func TestControlSignal(t *testing.T) {
	s := newControlSignal()
	assert.False(t, s.IsSet())
	s.Set()
	s.Set()
	assert.True(t, s.IsSet())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
}
