package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjtruitt/CodeReviewBot/internal/core"
)

type recordingJob struct {
	mu     sync.Mutex
	events []*core.ReviewEvent
	block  chan struct{}
}

func (r *recordingJob) Run(_ context.Context, event *core.ReviewEvent) (core.Outcome, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return core.Outcome{State: core.StateDone}, nil
}

func TestDispatcher_ProcessesQueuedEvents(t *testing.T) {
	job := &recordingJob{}
	d := NewDispatcher(job, 2, testLogger())

	for i := 1; i <= 5; i++ {
		err := d.Dispatch(context.Background(), &core.ReviewEvent{RepoOwner: "acme", RepoName: "api", PRNumber: i})
		require.NoError(t, err)
	}
	d.Stop()

	job.mu.Lock()
	defer job.mu.Unlock()
	assert.Len(t, job.events, 5)
}

func TestDispatcher_RejectsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	job := &recordingJob{block: block}
	d := NewDispatcher(job, 1, testLogger())

	// One event occupies the worker; the queue holds 100 more.
	var err error
	for i := 0; i < 102; i++ {
		err = d.Dispatch(context.Background(), &core.ReviewEvent{RepoOwner: "acme", RepoName: "api", PRNumber: i + 1})
		if err != nil {
			break
		}
		// Give the worker a moment to pull the first event off the queue.
		if i == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}
	assert.Error(t, err, "a full queue must push back instead of blocking")

	close(block)
	d.Stop()
}
