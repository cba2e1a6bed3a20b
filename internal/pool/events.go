package pool

import (
	"sync"

	"github.com/rs/zerolog"
)

// Event names published by the pool.
const (
	EventPoolStarted         = "pool_started"
	EventPoolShutdown        = "pool_shutdown"
	EventWorkerReady         = "worker_ready"
	EventWorkerRespawn       = "worker_respawn"
	EventWorkerReplaceFailed = "worker_replace_failed"
)

// Event is a lifecycle notification. Fields carries event-specific data.
type Event struct {
	Name     string
	WorkerID string
	Fields   map[string]any
}

// EventPublisher receives pool events. Publish must not block for long; it is
// called outside the pool mutex but on the caller's goroutine.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// LogPublisher writes events to a zerolog logger.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(l zerolog.Logger) *LogPublisher { return &LogPublisher{log: l} }

func (p *LogPublisher) Publish(e Event) {
	ev := p.log.Info()
	if e.Name == EventWorkerReplaceFailed {
		ev = p.log.Error()
	}
	if e.WorkerID != "" {
		ev = ev.Str("worker", e.WorkerID)
	}
	ev.Fields(e.Fields).Msg(e.Name)
}

// MemoryPublisher records events in memory. Useful in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

// Events returns a snapshot of recorded events.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the recorded event names in order.
func (p *MemoryPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}
