package worker

import (
	"bufio"
	"context"
	"iter"
	"strings"
	"sync/atomic"
	"time"
)

// Turn end reasons, used as the turns_total label.
const (
	endSentinel    = "sentinel"
	endIdle        = "idle"
	endFirstOutput = "first_output_timeout"
	endEOF         = "eof"
	endReaderError = "reader_error"
	endCanceled    = "canceled"
	endAbandoned   = "abandoned"
	endStopped     = "stopped"
)

// Infer writes prompt to the process and returns the response as a lazy
// sequence of output lines. The sequence can be ranged over once; breaking
// out early leaves the process generating until the next Infer drains it.
func (w *Worker) Infer(ctx context.Context, prompt string, opts InferOptions) (iter.Seq[string], error) {
	if !w.Alive() {
		return nil, notOperationalError{id: w.id}
	}
	w.mu.Lock()
	stdin, events := w.stdin, w.events
	if stdin == nil || events == nil {
		w.mu.Unlock()
		return nil, notOperationalError{id: w.id}
	}
	w.mu.Unlock()

	var (
		n    int
		dead bool
	)
	if w.unfinished.Load() {
		var err error
		n, dead, err = w.finishUnfinished(ctx, events)
		if err != nil {
			return nil, err
		}
	} else {
		n, dead = drainStale(events)
	}
	if n > 0 {
		w.log.Debug().Int("events", n).Msg("dropped stale output")
	}
	if dead {
		w.ctl.Set()
		return nil, notOperationalError{id: w.id}
	}

	prompt = singleLine(prompt)
	bw := bufio.NewWriter(stdin)
	_, err := bw.WriteString(prompt + "\n")
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		w.ctl.Set()
		w.log.Error().Err(err).Msg("write prompt")
		return nil, notOperationalError{id: w.id, cause: err}
	}
	w.unfinished.Store(true)

	t := &turn{w: w, prompt: prompt, events: events, opts: w.turnOptions(opts)}
	return t.seq(ctx), nil
}

func (w *Worker) turnOptions(o InferOptions) InferOptions {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = w.cfg.IdleTimeout
	}
	if o.FirstOutputTimeout <= 0 {
		o.FirstOutputTimeout = w.cfg.FirstOutputTimeout
	}
	return o
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// singleLine folds line breaks into spaces. llama-cli answers every stdin
// line as its own turn, so a prompt must be exactly one line.
func singleLine(prompt string) string {
	return strings.TrimSpace(lineBreaks.Replace(prompt))
}

// finishUnfinished consumes the rest of a turn that ended before its
// sentinel. It stops at the sentinel or after IdleTimeout of silence.
func (w *Worker) finishUnfinished(ctx context.Context, events <-chan Event) (int, bool, error) {
	timer := time.NewTimer(w.cfg.IdleTimeout)
	defer timer.Stop()
	n := 0
	for {
		select {
		case ev := <-events:
			if ev.Terminal() {
				return n, true, nil
			}
			n++
			if ev.Kind == StderrLine {
				w.noteStderr(ev.Line)
			}
			if ev.Kind == StdoutLine && strings.TrimSpace(ev.Line) == w.cfg.ReversePrompt {
				w.unfinished.Store(false)
				return n, false, nil
			}
			timer.Reset(w.cfg.IdleTimeout)
		case <-timer.C:
			w.unfinished.Store(false)
			return n, false, nil
		case <-w.quit:
			return n, true, nil
		case <-ctx.Done():
			return n, false, ctx.Err()
		}
	}
}

// drainStale empties events left over from an abandoned turn and reports
// whether one of them ended a stream.
func drainStale(events <-chan Event) (int, bool) {
	n := 0
	for {
		select {
		case ev := <-events:
			if ev.Terminal() {
				return n, true
			}
			n++
		default:
			return n, false
		}
	}
}

type turn struct {
	w      *Worker
	prompt string
	events <-chan Event
	opts   InferOptions
	used   atomic.Bool
}

func (t *turn) seq(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		if !t.used.CompareAndSwap(false, true) {
			return
		}
		t.w.setState(StateBusy)
		start := time.Now()
		reason, n := t.run(ctx, yield)
		switch reason {
		case endSentinel, endIdle, endEOF, endReaderError, endStopped:
			t.w.unfinished.Store(false)
		}
		turnsTotal.WithLabelValues(reason).Inc()
		turnDuration.Observe(time.Since(start).Seconds())
		fragmentsTotal.Add(float64(n))
		t.w.log.Debug().Str("end", reason).Int("fragments", n).Dur("took", time.Since(start)).Msg("turn finished")
		t.w.setState(StateReady)
	}
}

// run consumes events until the turn ends and reports why, plus the number of
// fragments yielded.
func (t *turn) run(ctx context.Context, yield func(string) bool) (string, int) {
	w := t.w
	timer := time.NewTimer(t.opts.FirstOutputTimeout)
	defer timer.Stop()

	var (
		n         int
		seenLine  bool
		producing bool
		yielding  = true
	)
	for {
		select {
		case ev := <-t.events:
			switch ev.Kind {
			case StderrLine:
				w.noteStderr(ev.Line)
			case EOF:
				w.ctl.Set()
				t.collectTail(ev)
				w.log.Warn().Str("stream", string(ev.Source)).Msg("stream closed during turn")
				return endEOF, n
			case ReaderError:
				w.ctl.Set()
				t.collectTail(ev)
				w.log.Error().Err(ev.Err).Str("stream", string(ev.Source)).Msg("stream failed during turn")
				return endReaderError, n
			case StdoutLine:
				first := !seenLine
				seenLine = true
				trimmed := strings.TrimSpace(ev.Line)
				if first && trimmed == t.prompt {
					break
				}
				if trimmed == w.cfg.ReversePrompt {
					return endSentinel, n
				}
				producing = true
				if !yielding {
					break
				}
				n++
				if !yield(ev.Line) {
					return endAbandoned, n
				}
				if t.opts.MaxFragments > 0 && n >= t.opts.MaxFragments {
					yielding = false
				}
			}
			if producing {
				timer.Reset(t.opts.IdleTimeout)
			} else {
				timer.Reset(t.opts.FirstOutputTimeout)
			}
		case <-timer.C:
			if !producing {
				w.log.Warn().Dur("timeout", t.opts.FirstOutputTimeout).Msg("no output for prompt")
				return endFirstOutput, n
			}
			return endIdle, n
		case <-w.quit:
			return endStopped, n
		case <-ctx.Done():
			return endCanceled, n
		}
	}
}

// collectTail keeps the dying process's last diagnostics when stdout ended
// before stderr.
func (t *turn) collectTail(ev Event) {
	if ev.Source != SourceStderr {
		t.w.collectTail(t.events, exitTailGrace)
	}
}
