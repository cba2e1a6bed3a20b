package pool

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lmserv/internal/worker"
)

// Worker is what the pool needs from a supervised process. *worker.Worker
// satisfies it.
type Worker interface {
	ID() string
	Spawn(ctx context.Context) error
	Infer(ctx context.Context, prompt string, opts worker.InferOptions) (iter.Seq[string], error)
	Alive() bool
	Stop()
}

// Factory builds a new unspawned worker.
type Factory func() Worker

// Config sizes and instruments a Pool.
type Config struct {
	// Size is the number of workers Start spawns.
	Size int
	// AcquireTimeout bounds Acquire when > 0.
	AcquireTimeout time.Duration
	Logger         *zerolog.Logger
	Publisher      EventPublisher
}

// Stats is a consistent snapshot of pool occupancy.
type Stats struct {
	Capacity int `json:"capacity"`
	Free     int `json:"free"`
	Busy     int `json:"busy"`
	Waiting  int `json:"waiting"`
}

type acquireResult struct {
	w   Worker
	err error
}

type waiter struct {
	ch chan acquireResult
}

// Pool lends workers to callers. All fields below mu are guarded by it.
type Pool struct {
	cfg     Config
	factory Factory
	log     zerolog.Logger
	pub     EventPublisher

	mu       sync.Mutex
	free     []Worker
	busy     map[Worker]struct{}
	waiters  []*waiter
	capacity int
	starting bool
	started  bool
	closed   bool
}

// New returns an unstarted pool.
func New(cfg Config, factory Factory) *Pool {
	lg := zerolog.Nop()
	if cfg.Logger != nil {
		lg = *cfg.Logger
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Pool{
		cfg:     cfg,
		factory: factory,
		log:     lg.With().Str("component", "pool").Logger(),
		pub:     pub,
		busy:    make(map[Worker]struct{}),
	}
}

// Start spawns cfg.Size workers concurrently and returns once all are ready.
// If any spawn fails, every worker created so far is stopped and the pool
// stays unstarted.
func (p *Pool) Start(ctx context.Context) error {
	if p.cfg.Size < 1 {
		return fmt.Errorf("pool size must be >= 1, got %d", p.cfg.Size)
	}
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return ErrClosed
	case p.started || p.starting:
		p.mu.Unlock()
		p.log.Warn().Msg("start called twice; ignoring")
		return nil
	}
	p.starting = true
	p.mu.Unlock()

	workers := make([]Worker, p.cfg.Size)
	for i := range workers {
		workers[i] = p.factory()
	}
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			if err := w.Spawn(gctx); err != nil {
				spawnFailuresTotal.Inc()
				return fmt.Errorf("spawn worker %s: %w", w.ID(), err)
			}
			p.pub.Publish(Event{Name: EventWorkerReady, WorkerID: w.ID()})
			return nil
		})
	}
	err := g.Wait()

	p.mu.Lock()
	p.starting = false
	if err == nil && p.closed {
		err = ErrClosed
	}
	if err != nil {
		p.mu.Unlock()
		stopAll(workers)
		p.log.Error().Err(err).Msg("pool start failed")
		return err
	}
	p.free = append(p.free[:0], workers...)
	p.capacity = len(workers)
	p.started = true
	p.observeLocked()
	p.mu.Unlock()

	p.log.Info().Int("workers", len(workers)).Dur("took", time.Since(start)).Msg("pool started")
	p.pub.Publish(Event{Name: EventPoolStarted, Fields: map[string]any{"workers": len(workers)}})
	return nil
}

// Acquire blocks until a worker is free, ctx is done or AcquireTimeout passes.
// Waiters are served in arrival order.
func (p *Pool) Acquire(ctx context.Context) (Worker, error) {
	start := time.Now()
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return nil, ErrClosed
	case !p.started:
		p.mu.Unlock()
		return nil, ErrNotStarted
	case p.capacity == 0:
		p.mu.Unlock()
		return nil, ErrExhausted
	}
	if len(p.free) > 0 {
		w := p.free[0]
		p.free = p.free[1:]
		p.busy[w] = struct{}{}
		p.observeLocked()
		p.mu.Unlock()
		acquireWait.Observe(time.Since(start).Seconds())
		return w, nil
	}
	wt := &waiter{ch: make(chan acquireResult, 1)}
	p.waiters = append(p.waiters, wt)
	p.observeLocked()
	p.mu.Unlock()

	var timeout <-chan time.Time
	if p.cfg.AcquireTimeout > 0 {
		t := time.NewTimer(p.cfg.AcquireTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res := <-wt.ch:
		acquireWait.Observe(time.Since(start).Seconds())
		return res.w, res.err
	case <-ctx.Done():
		p.abandon(wt)
		return nil, ctx.Err()
	case <-timeout:
		p.abandon(wt)
		return nil, tooBusyError{waited: p.cfg.AcquireTimeout}
	}
}

// abandon removes wt from the queue. If a worker was handed over in the
// meantime it goes back to the next waiter or the free list.
func (p *Pool) abandon(wt *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, x := range p.waiters {
		if x == wt {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.observeLocked()
			return
		}
	}
	select {
	case res := <-wt.ch:
		if res.w != nil {
			delete(p.busy, res.w)
			p.handoffLocked(res.w)
			p.observeLocked()
		}
	default:
	}
}

// handoffLocked gives w to the oldest waiter or appends it to the free list.
func (p *Pool) handoffLocked(w Worker) {
	if len(p.waiters) > 0 {
		wt := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.busy[w] = struct{}{}
		wt.ch <- acquireResult{w: w}
		return
	}
	p.free = append(p.free, w)
}

// Release returns w to the pool. A dead worker is stopped and replaced; if
// the replacement cannot be spawned the pool shrinks by one and the spawn
// error is returned.
func (p *Pool) Release(ctx context.Context, w Worker) error {
	if w == nil {
		return ErrUnknownWorker
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		w.Stop()
		return nil
	}
	if _, ok := p.busy[w]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWorker, w.ID())
	}
	if w.Alive() {
		delete(p.busy, w)
		p.handoffLocked(w)
		p.observeLocked()
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.replace(ctx, w)
}

func (p *Pool) replace(ctx context.Context, dead Worker) error {
	p.log.Warn().Str("worker", dead.ID()).Msg("worker dead on release; replacing")
	dead.Stop()
	respawnsTotal.Inc()

	nw := p.factory()
	spawnErr := nw.Spawn(ctx)

	p.mu.Lock()
	delete(p.busy, dead)
	if p.closed {
		p.mu.Unlock()
		nw.Stop()
		return nil
	}
	if spawnErr != nil {
		p.capacity--
		var orphans []*waiter
		if p.capacity == 0 {
			orphans, p.waiters = p.waiters, nil
		}
		for _, wt := range orphans {
			wt.ch <- acquireResult{err: ErrExhausted}
		}
		capacity := p.capacity
		p.observeLocked()
		p.mu.Unlock()

		nw.Stop()
		spawnFailuresTotal.Inc()
		p.log.Error().Err(spawnErr).Str("worker", dead.ID()).Int("capacity", capacity).Msg("replacement failed; pool shrunk")
		p.pub.Publish(Event{Name: EventWorkerReplaceFailed, WorkerID: dead.ID(), Fields: map[string]any{
			"error":    spawnErr.Error(),
			"capacity": capacity,
		}})
		return fmt.Errorf("replace worker %s: %w", dead.ID(), spawnErr)
	}
	p.handoffLocked(nw)
	p.observeLocked()
	p.mu.Unlock()

	p.log.Info().Str("old", dead.ID()).Str("new", nw.ID()).Msg("worker replaced")
	p.pub.Publish(Event{Name: EventWorkerRespawn, WorkerID: nw.ID(), Fields: map[string]any{"replaced": dead.ID()}})
	return nil
}

// Shutdown stops every worker, free or busy, and fails pending waiters with
// ErrClosed. It returns early with ctx's error if stopping takes too long.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	all := make([]Worker, 0, len(p.free)+len(p.busy))
	all = append(all, p.free...)
	for w := range p.busy {
		all = append(all, w)
	}
	for _, wt := range p.waiters {
		wt.ch <- acquireResult{err: ErrClosed}
	}
	p.free, p.waiters = nil, nil
	p.busy = make(map[Worker]struct{})
	p.capacity = 0
	p.observeLocked()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		stopAll(all)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("pool shutdown: %w", ctx.Err())
	}
	p.log.Info().Int("workers", len(all)).Msg("pool shut down")
	p.pub.Publish(Event{Name: EventPoolShutdown, Fields: map[string]any{"workers": len(all)}})
	return nil
}

func stopAll(ws []Worker) {
	var wg sync.WaitGroup
	for _, w := range ws {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool) statsLocked() Stats {
	return Stats{
		Capacity: p.capacity,
		Free:     len(p.free),
		Busy:     len(p.busy),
		Waiting:  len(p.waiters),
	}
}

// FreeCount is the number of idle workers.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Ready reports whether the pool is started, open and has workers.
func (p *Pool) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.closed && p.capacity > 0
}

func (p *Pool) observeLocked() {
	s := p.statsLocked()
	workersGauge.WithLabelValues("free").Set(float64(s.Free))
	workersGauge.WithLabelValues("busy").Set(float64(s.Busy))
	workersGauge.WithLabelValues("capacity").Set(float64(s.Capacity))
	waitingGauge.Set(float64(s.Waiting))
}
