package pool

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"lmserv/internal/worker"
)

type fakeWorker struct {
	id         string
	spawnErr   error
	spawnDelay time.Duration
	spawned    atomic.Bool
	dead       atomic.Bool
	stops      atomic.Int32
}

func (f *fakeWorker) ID() string { return f.id }

func (f *fakeWorker) Spawn(ctx context.Context) error {
	if f.spawnDelay > 0 {
		select {
		case <-time.After(f.spawnDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.spawnErr != nil {
		return f.spawnErr
	}
	f.spawned.Store(true)
	return nil
}

func (f *fakeWorker) Infer(_ context.Context, _ string, _ worker.InferOptions) (iter.Seq[string], error) {
	if !f.Alive() {
		return nil, fmt.Errorf("worker %s: %w", f.id, worker.ErrNotOperational)
	}
	return slices.Values([]string{"Hola", "🙂"}), nil
}

func (f *fakeWorker) Alive() bool { return f.spawned.Load() && !f.dead.Load() && f.stops.Load() == 0 }

func (f *fakeWorker) Stop() { f.stops.Add(1) }

// fakeFactory numbers workers w0, w1, ... and lets a test decide which spawns fail.
type fakeFactory struct {
	mu    sync.Mutex
	made  []*fakeWorker
	fail  func(n int) error
	delay time.Duration
}

func (ff *fakeFactory) New() Worker {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	n := len(ff.made)
	w := &fakeWorker{id: fmt.Sprintf("w%d", n), spawnDelay: ff.delay}
	if ff.fail != nil {
		w.spawnErr = ff.fail(n)
	}
	ff.made = append(ff.made, w)
	return w
}

func (ff *fakeFactory) workers() []*fakeWorker {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return append([]*fakeWorker(nil), ff.made...)
}

var errSpawn = errors.New("model failed to load")
