package worker

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// multiplexer pumps one stream into the channel shared with its sibling.
type multiplexer struct {
	source Source
	r      io.Reader
	out    chan<- Event
	quit   <-chan struct{}
	ctl    *controlSignal
	log    zerolog.Logger
}

func newMultiplexer(src Source, r io.Reader, out chan<- Event, quit <-chan struct{}, ctl *controlSignal, log zerolog.Logger) *multiplexer {
	return &multiplexer{
		source: src,
		r:      r,
		out:    out,
		quit:   quit,
		ctl:    ctl,
		log:    log.With().Str("stream", string(src)).Logger(),
	}
}

func (m *multiplexer) lineKind() EventKind {
	if m.source == SourceStderr {
		return StderrLine
	}
	return StdoutLine
}

// run blocks in line reads until EOF, a read error or quit. It sets the
// control signal on every exit path so nobody keeps waiting on a stream that
// is gone.
func (m *multiplexer) run() {
	defer func() {
		m.ctl.Set()
		m.log.Debug().Msg("reader done")
	}()
	br := bufio.NewReader(m.r)
	for {
		if m.quitting() {
			return
		}
		line, err := br.ReadString('\n')
		if line != "" {
			if !m.emit(Event{Source: m.source, Kind: m.lineKind(), Line: cleanLine(line)}) {
				return
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			m.log.Debug().Msg("eof")
			m.emit(Event{Source: m.source, Kind: EOF})
			return
		}
		if m.quitting() {
			return
		}
		m.log.Error().Err(err).Msg("stream read failed")
		m.emit(Event{Source: m.source, Kind: ReaderError, Err: err})
		return
	}
}

// emit delivers ev unless quit is closed first.
func (m *multiplexer) emit(ev Event) bool {
	select {
	case m.out <- ev:
		return true
	case <-m.quit:
		return false
	}
}

func (m *multiplexer) quitting() bool {
	select {
	case <-m.quit:
		return true
	default:
		return false
	}
}

func cleanLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	return strings.ToValidUTF8(s, "�")
}
