package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/model"
)

// Bus is an in-process publish/subscribe channel keyed by job ID with a
// last-value cache. Delivery is best-effort: a subscriber that cannot
// keep up is skipped, and LastEvent is the recovery mechanism after a
// reconnect or missed event.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan model.ProgressEvent]struct{}
	last map[string]model.ProgressEvent
	log  *zap.Logger
}

// subscriber channel depth; the engine publishes at step granularity so
// a small buffer absorbs normal bursts.
const subBuffer = 16

// New creates a progress bus.
func New(log *zap.Logger) *Bus {
	return &Bus{
		subs: make(map[string]map[chan model.ProgressEvent]struct{}),
		last: make(map[string]model.ProgressEvent),
		log:  log.Named("bus"),
	}
}

// Publish records the event as the job's last event and fans it out.
// Publish calls for one job are serialized by the engine (single writer
// per job), which is what keeps subscriber streams monotonic.
func (b *Bus) Publish(jobID string, ev model.ProgressEvent) {
	b.mu.Lock()
	b.last[jobID] = ev
	targets := make([]chan model.ProgressEvent, 0, len(b.subs[jobID]))
	for ch := range b.subs[jobID] {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			b.log.Debug("dropping event for slow subscriber", zap.String("jobId", jobID))
		}
	}
}

// Subscribe returns a stream of events for the job and a cancel func.
func (b *Bus) Subscribe(jobID string) (<-chan model.ProgressEvent, func()) {
	ch := make(chan model.ProgressEvent, subBuffer)

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan model.ProgressEvent]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[jobID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, jobID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// LastEvent returns the most recent event published for the job.
func (b *Bus) LastEvent(jobID string) (model.ProgressEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev, ok := b.last[jobID]
	return ev, ok
}

// Forget drops the cached last event, used when a job expires from the
// store.
func (b *Bus) Forget(jobID string) {
	b.mu.Lock()
	delete(b.last, jobID)
	b.mu.Unlock()
}
