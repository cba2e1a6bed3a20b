package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is a worker lifecycle phase.
type State string

const (
	StateNew      State = "new"
	StateSpawning State = "spawning"
	StateReady    State = "ready"
	StateBusy     State = "busy"
	StateStopped  State = "stopped"
)

// Worker owns one llama-cli process.
type Worker struct {
	id      string
	cfg     Config
	log     zerolog.Logger
	markers readyMatcher
	tail    *lineTail

	ctl      *controlSignal
	quit     chan struct{}
	stopOnce sync.Once
	readers  sync.WaitGroup

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	pid     int
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser
	events  chan Event
	exited  chan struct{}
	exitErr error
	exitMsg string

	// unfinished is set while a turn's output may still be arriving.
	unfinished atomic.Bool
}

// New returns an unspawned worker.
func New(cfg Config) *Worker {
	cfg = cfg.withDefaults()
	lg := zerolog.Nop()
	if cfg.Logger != nil {
		lg = *cfg.Logger
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return &Worker{
		id:      id,
		cfg:     cfg,
		log:     lg.With().Str("worker", id).Logger(),
		markers: newReadyMatcher(cfg.ReadyMarkers),
		tail:    newLineTail(cfg.TailLines),
		ctl:     newControlSignal(),
		quit:    make(chan struct{}),
		state:   StateNew,
	}
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// PID returns the process id, or 0 when no process is attached.
func (w *Worker) PID() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pid
}

// StderrTail returns the most recent diagnostic lines.
func (w *Worker) StderrTail() []string { return w.tail.snapshot() }

// Alive reports whether the process is running and no stream has ended.
func (w *Worker) Alive() bool {
	if w.ctl.IsSet() {
		return false
	}
	w.mu.Lock()
	exited := w.exited
	w.mu.Unlock()
	if exited == nil {
		return false
	}
	select {
	case <-exited:
		return false
	default:
		return true
	}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	if w.state != StateStopped {
		w.state = s
	}
	w.mu.Unlock()
}

// Spawn starts the process and blocks until it prints a ready marker on
// stderr. On failure the worker is stopped and a *StartupError is returned.
func (w *Worker) Spawn(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateNew {
		st := w.state
		w.mu.Unlock()
		return fmt.Errorf("worker %s: spawn in state %s", w.id, st)
	}
	w.state = StateSpawning
	w.mu.Unlock()

	args := BuildArgs(w.cfg)
	cmd := exec.Command(w.cfg.Bin, args...)
	if len(w.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), w.cfg.Env...)
	}
	stdin, stdout, stderr, err := openPipes(cmd)
	if err != nil {
		return w.failStart("pipes", err)
	}
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return w.failStart("start "+w.cfg.Bin, err)
	}

	w.mu.Lock()
	if w.state == StateStopped {
		// Stop ran while the process was being started.
		w.mu.Unlock()
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		startupFailuresTotal.WithLabelValues("stopped").Inc()
		return &StartupError{WorkerID: w.id, Reason: "stopped during spawn"}
	}
	w.cmd = cmd
	w.pid = cmd.Process.Pid
	w.stdin, w.stdout, w.stderr = stdin, stdout, stderr
	w.events = make(chan Event, w.cfg.QueueSize)
	w.exited = make(chan struct{})
	events, exited := w.events, w.exited
	w.mu.Unlock()

	w.log.Info().Int("pid", cmd.Process.Pid).Strs("args", args).Msg("spawned llama-cli")

	go w.reap(cmd.Process, exited)
	w.readers.Add(2)
	for _, m := range []*multiplexer{
		newMultiplexer(SourceStdout, stdout, events, w.quit, w.ctl, w.log),
		newMultiplexer(SourceStderr, stderr, events, w.quit, w.ctl, w.log),
	} {
		go func(m *multiplexer) {
			defer w.readers.Done()
			m.run()
		}(m)
	}

	if err := w.waitReady(ctx, events, exited); err != nil {
		w.log.Error().Err(err).Msg("worker failed to become ready")
		w.Stop()
		return err
	}
	spawnDuration.Observe(time.Since(start).Seconds())
	w.setState(StateReady)
	return nil
}

// openPipes attaches all three standard streams. On error the pipes already
// opened are closed.
func openPipes(cmd *exec.Cmd) (io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, nil, nil, fmt.Errorf("stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, nil, nil, fmt.Errorf("stderr: %w", err)
	}
	return stdin, stdout, stderr, nil
}

func (w *Worker) failStart(reason string, err error) error {
	w.setState(StateStopped)
	startupFailuresTotal.WithLabelValues("start").Inc()
	return &StartupError{WorkerID: w.id, Reason: reason, Err: err}
}

// reap records process exit. It uses Process.Wait rather than Cmd.Wait so the
// pipes stay open until the readers have drained them.
func (w *Worker) reap(p *os.Process, exited chan struct{}) {
	st, err := p.Wait()
	w.mu.Lock()
	w.exitErr = err
	if st != nil {
		w.exitMsg = st.String()
	}
	msg := w.exitMsg
	w.mu.Unlock()
	close(exited)
	w.log.Debug().Int("pid", p.Pid).Str("status", msg).Msg("process exited")
}

func (w *Worker) exitStatus() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exitMsg, w.exitErr
}

func (w *Worker) noteStderr(line string) {
	w.tail.add(line)
	w.log.Debug().Str("stream", string(SourceStderr)).Str("line", line).Msg("llama-cli")
}

func (w *Worker) waitReady(ctx context.Context, events <-chan Event, exited <-chan struct{}) error {
	timer := time.NewTimer(w.cfg.ReadyTimeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case StderrLine:
				w.noteStderr(ev.Line)
				if mk, ok := w.markers.match(ev.Line); ok {
					w.log.Info().Str("marker", mk).Msg("worker ready")
					return nil
				}
			case StdoutLine:
				w.log.Debug().Str("stream", string(SourceStdout)).Str("line", ev.Line).Msg("output before ready")
			case EOF, ReaderError:
				if ev.Source != SourceStderr {
					w.collectTail(events, exitTailGrace)
				}
				return w.startupFailure("closed", fmt.Sprintf("%s closed before ready", ev.Source), ev.Err)
			}
		case <-exited:
			w.collectTail(events, exitTailGrace)
			msg, err := w.exitStatus()
			if msg == "" {
				msg = "unknown status"
			}
			return w.startupFailure("exited", "process exited before ready ("+msg+")", err)
		case <-w.quit:
			return w.startupFailure("stopped", "stopped before ready", nil)
		case <-timer.C:
			return w.startupFailure("timeout", fmt.Sprintf("not ready after %s", w.cfg.ReadyTimeout), nil)
		case <-ctx.Done():
			return w.startupFailure("canceled", "spawn canceled", ctx.Err())
		}
	}
}

// collectTail moves pending stderr lines into the tail until stderr ends or
// grace elapses.
func (w *Worker) collectTail(events <-chan Event, grace time.Duration) {
	t := time.NewTimer(grace)
	defer t.Stop()
	for {
		select {
		case ev := <-events:
			if ev.Kind == StderrLine {
				w.noteStderr(ev.Line)
			}
			if ev.Terminal() && ev.Source == SourceStderr {
				return
			}
		case <-t.C:
			return
		}
	}
}

func (w *Worker) startupFailure(cause, reason string, err error) error {
	startupFailuresTotal.WithLabelValues(cause).Inc()
	return &StartupError{WorkerID: w.id, Reason: reason, Tail: w.tail.snapshot(), Err: err}
}
