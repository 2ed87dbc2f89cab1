package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_IntervalTriggerFires(t *testing.T) {
	var mu sync.Mutex
	var runs []string

	s := New(func(ctx context.Context, workflowID string, input map[string]interface{}) error {
		mu.Lock()
		runs = append(runs, workflowID)
		mu.Unlock()
		return nil
	}, nil)

	require.NoError(t, s.Add(Trigger{ID: "t1", WorkflowID: "wf-interval", Interval: 100 * time.Millisecond}))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(runs) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_CronExpressionFires(t *testing.T) {
	fired := make(chan string, 4)
	s := New(func(ctx context.Context, workflowID string, input map[string]interface{}) error {
		fired <- workflowID
		return nil
	}, nil)

	require.NoError(t, s.Add(Trigger{ID: "t2", WorkflowID: "wf-cron", Schedule: "@every 100ms"}))
	s.Start()
	defer s.Stop()

	select {
	case wf := <-fired:
		assert.Equal(t, "wf-cron", wf)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger never fired")
	}
}

func TestScheduler_RemoveStopsFutureRuns(t *testing.T) {
	var mu sync.Mutex
	count := 0

	s := New(func(ctx context.Context, workflowID string, input map[string]interface{}) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}, nil)

	require.NoError(t, s.Add(Trigger{ID: "t3", WorkflowID: "wf-removed", Interval: 50 * time.Millisecond}))
	s.Start()
	defer s.Stop()

	time.Sleep(120 * time.Millisecond)
	s.Remove("t3")

	mu.Lock()
	seen := count
	mu.Unlock()

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, seen, count, "no further runs should occur after Remove")
}

func TestScheduler_AddRejectsEmptyTrigger(t *testing.T) {
	s := New(func(ctx context.Context, workflowID string, input map[string]interface{}) error { return nil }, nil)
	err := s.Add(Trigger{ID: "bad"})
	require.Error(t, err)
}

func TestScheduler_NextRunReportsActiveEntry(t *testing.T) {
	s := New(func(ctx context.Context, workflowID string, input map[string]interface{}) error { return nil }, nil)
	require.NoError(t, s.Add(Trigger{ID: "t4", WorkflowID: "wf-next", Interval: time.Minute}))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		next, ok := s.NextRun("t4")
		return ok && !next.IsZero()
	}, time.Second, 10*time.Millisecond)

	_, ok := s.NextRun("missing")
	assert.False(t, ok)
}
