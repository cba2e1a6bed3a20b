package worker

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// Stop shuts the process down: stdin is closed, then SIGINT, SIGTERM and
// SIGKILL are sent in turn until the process exits. It never fails; problems
// are logged. Calling Stop again is a no-op.
func (w *Worker) Stop() {
	w.stopOnce.Do(w.stop)
}

func (w *Worker) stop() {
	w.ctl.Set()
	close(w.quit)

	w.mu.Lock()
	cmd, stdin, stdout, stderr, exited := w.cmd, w.stdin, w.stdout, w.stderr, w.exited
	w.state = StateStopped
	w.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		w.log.Debug().Msg("stop: no process")
		return
	}
	pid := cmd.Process.Pid
	lg := w.log.With().Int("pid", pid).Logger()

	if stdin != nil {
		if err := stdin.Close(); err != nil {
			lg.Debug().Err(err).Msg("close stdin")
		}
	}

	steps := []struct {
		name string
		sig  os.Signal
		wait time.Duration
	}{
		{"interrupt", os.Interrupt, w.cfg.InterruptTimeout},
		{"terminate", syscall.SIGTERM, w.cfg.TerminateTimeout},
		{"kill", os.Kill, w.cfg.KillTimeout},
	}
	gone := waitClosed(exited, 0)
	for _, s := range steps {
		if gone {
			break
		}
		if err := cmd.Process.Signal(s.sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
			lg.Warn().Err(err).Str("signal", s.name).Msg("signal failed")
		}
		if gone = waitClosed(exited, s.wait); !gone {
			lg.Warn().Str("signal", s.name).Dur("waited", s.wait).Msg("process still running")
		}
	}
	if !gone {
		lg.Error().Msg("process did not exit after SIGKILL")
	}

	for _, c := range []interface{ Close() error }{stdout, stderr} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			lg.Debug().Err(err).Msg("close pipe")
		}
	}
	readersDone := make(chan struct{})
	go func() {
		w.readers.Wait()
		close(readersDone)
	}()
	if !waitClosed(readersDone, readerGrace) {
		lg.Warn().Msg("stream readers still running")
	}

	w.mu.Lock()
	w.cmd = nil
	w.pid = 0
	w.stdin, w.stdout, w.stderr = nil, nil, nil
	w.mu.Unlock()

	msg, _ := w.exitStatus()
	lg.Info().Str("status", msg).Msg("worker stopped")
}

// waitClosed waits up to d for ch to be closed. A nil channel counts as closed.
func waitClosed(ch <-chan struct{}, d time.Duration) bool {
	if ch == nil {
		return true
	}
	if d <= 0 {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
