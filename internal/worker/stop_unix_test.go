//go:build unix

package worker

import (
	"syscall"
	"testing"
	"time"
)

func TestStopEscalatesPastIgnoredSignals(t *testing.T) {
	w := newFakeWorker(t, func(c *Config) {
		c.InterruptTimeout = 200 * time.Millisecond
		c.TerminateTimeout = 200 * time.Millisecond
	}, "FAKE_IGNORE_SIGINT=1", "FAKE_IGNORE_SIGTERM=1", "FAKE_HANG_ON_EOF=1")
	if err := w.Spawn(testCtx(t)); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	pid := w.PID()
	start := time.Now()
	w.Stop()
	if time.Since(start) > 5*time.Second {
		t.Fatalf("stop took %s", time.Since(start))
	}
	if err := syscall.Kill(pid, 0); err == nil {
		t.Fatalf("process %d still running", pid)
	}
}
