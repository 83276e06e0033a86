package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pixelmuse/api/internal/model"
)

func event(jobID string, progress int) model.ProgressEvent {
	return model.ProgressEvent{
		JobID:     jobID,
		Progress:  progress,
		Status:    model.JobStatusPolling,
		Timestamp: time.Now(),
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := New(zap.NewNop())

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	b.Publish("job-1", event("job-1", 25))

	select {
	case ev := <-ch:
		assert.Equal(t, 25, ev.Progress)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestPublishIsScopedToJob(t *testing.T) {
	b := New(zap.NewNop())

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	b.Publish("job-2", event("job-2", 50))

	assert.Empty(t, ch)
}

func TestLastEventReplay(t *testing.T) {
	b := New(zap.NewNop())

	_, ok := b.LastEvent("job-1")
	assert.False(t, ok)

	b.Publish("job-1", event("job-1", 5))
	b.Publish("job-1", event("job-1", 90))

	ev, ok := b.LastEvent("job-1")
	require.True(t, ok)
	assert.Equal(t, 90, ev.Progress)
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New(zap.NewNop())

	ch, cancel := b.Subscribe("job-1")
	cancel()

	b.Publish("job-1", event("job-1", 10))
	assert.Empty(t, ch)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New(zap.NewNop())

	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subBuffer*3; i++ {
			b.Publish("job-1", event("job-1", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subBuffer)

	// The cache still holds the newest event for recovery.
	ev, ok := b.LastEvent("job-1")
	require.True(t, ok)
	assert.Equal(t, subBuffer*3-1, ev.Progress)
}

func TestForgetDropsCache(t *testing.T) {
	b := New(zap.NewNop())

	b.Publish("job-1", event("job-1", 100))
	b.Forget("job-1")

	_, ok := b.LastEvent("job-1")
	assert.False(t, ok)
}
