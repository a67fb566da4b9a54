package trigger_test

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/discoveryd/internal/trigger"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func collectJobs() (trigger.Dispatch, chan trigger.Job) {
	jobs := make(chan trigger.Job, 16)
	return func(job trigger.Job) { jobs <- job }, jobs
}

func waitJob(t *testing.T, jobs chan trigger.Job) trigger.Job {
	t.Helper()
	select {
	case job := <-jobs:
		return job
	case <-time.After(2 * time.Second):
		t.Fatal("expected a dispatched job")
		return trigger.Job{}
	}
}

func assertNoJob(t *testing.T, jobs chan trigger.Job) {
	t.Helper()
	select {
	case job := <-jobs:
		t.Fatalf("unexpected job dispatched: %+v", job)
	case <-time.After(50 * time.Millisecond):
	}
}

func event(table string, keys ...string) trigger.Event {
	return trigger.Event{
		SourceTable:  table,
		Operation:    trigger.OpUpdate,
		AffectedKeys: keys,
		OccurredAt:   time.Now(),
	}
}

func TestDebouncer_SingleEventDispatchesAfterWindow(t *testing.T) {
	clock := trigger.NewFakeClock()
	dispatch, jobs := collectJobs()
	d := trigger.NewDebouncer(time.Second, clock, nil, dispatch, zap.NewNop())
	defer d.Close()

	d.Offer(event("orders", "1"))
	assertNoJob(t, jobs)

	clock.Advance(time.Second)
	job := waitJob(t, jobs)
	assert.Equal(t, "orders", job.SourceTable)
	assert.Equal(t, []string{"orders"}, job.ResourceIDs)
	assert.Equal(t, []string{"1"}, job.AffectedKeys)
	assert.Equal(t, 1, job.Events)
	assert.False(t, job.Full)
	assert.NotEmpty(t, job.ID)
}

// Two events 200ms apart with a 1000ms window coalesce into exactly one job,
// dispatched 1000ms after the second event.
func TestDebouncer_EventsWithinWindowCoalesce(t *testing.T) {
	clock := trigger.NewFakeClock()
	dispatch, jobs := collectJobs()
	d := trigger.NewDebouncer(time.Second, clock, nil, dispatch, zap.NewNop())
	defer d.Close()

	d.Offer(event("api_tools.api_definitions", "1"))
	clock.Advance(200 * time.Millisecond)
	d.Offer(event("api_tools.api_definitions", "2"))

	// 1000ms after the first event the window is still extended.
	clock.Advance(800 * time.Millisecond)
	assertNoJob(t, jobs)

	// 1000ms after the second event it elapses.
	clock.Advance(200 * time.Millisecond)
	job := waitJob(t, jobs)
	assert.Equal(t, "api_tools.api_definitions", job.SourceTable)
	assert.Equal(t, 2, job.Events)
	assert.Equal(t, []string{"1", "2"}, job.AffectedKeys)
	assertNoJob(t, jobs)
}

func TestDebouncer_EventsOutsideWindowProduceSeparateJobs(t *testing.T) {
	clock := trigger.NewFakeClock()
	dispatch, jobs := collectJobs()
	d := trigger.NewDebouncer(time.Second, clock, nil, dispatch, zap.NewNop())
	defer d.Close()

	d.Offer(event("orders", "1"))
	clock.Advance(time.Second)
	first := waitJob(t, jobs)

	d.Offer(event("orders", "2"))
	clock.Advance(time.Second)
	second := waitJob(t, jobs)

	assert.Equal(t, 1, first.Events)
	assert.Equal(t, 1, second.Events)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestDebouncer_TablesHaveIndependentWindows(t *testing.T) {
	clock := trigger.NewFakeClock()
	dispatch, jobs := collectJobs()
	d := trigger.NewDebouncer(time.Second, clock, nil, dispatch, zap.NewNop())
	defer d.Close()

	d.Offer(event("orders", "1"))
	clock.Advance(500 * time.Millisecond)
	d.Offer(event("customers", "9"))
	assert.Equal(t, 2, d.Pending())

	clock.Advance(500 * time.Millisecond)
	job := waitJob(t, jobs)
	assert.Equal(t, "orders", job.SourceTable)

	clock.Advance(500 * time.Millisecond)
	job = waitJob(t, jobs)
	assert.Equal(t, "customers", job.SourceTable)
}

func TestDebouncer_AffectedKeysDeduplicated(t *testing.T) {
	clock := trigger.NewFakeClock()
	dispatch, jobs := collectJobs()
	d := trigger.NewDebouncer(time.Second, clock, nil, dispatch, zap.NewNop())
	defer d.Close()

	d.Offer(event("orders", "1", "2"))
	d.Offer(event("orders", "2", "3"))
	clock.Advance(time.Second)

	job := waitJob(t, jobs)
	assert.Equal(t, []string{"1", "2", "3"}, job.AffectedKeys)
	assert.Equal(t, 2, job.Events)
}

func TestDebouncer_ResolverMapsResources(t *testing.T) {
	clock := trigger.NewFakeClock()
	dispatch, jobs := collectJobs()
	resolve := func(table string) []string { return []string{table + "_a", table + "_b"} }
	d := trigger.NewDebouncer(time.Second, clock, resolve, dispatch, zap.NewNop())
	defer d.Close()

	d.Offer(event("orders", "1"))
	clock.Advance(time.Second)

	job := waitJob(t, jobs)
	assert.Equal(t, []string{"orders_a", "orders_b"}, job.ResourceIDs)
}

func TestDebouncer_CloseDropsPendingWindows(t *testing.T) {
	clock := trigger.NewFakeClock()
	dispatch, jobs := collectJobs()
	d := trigger.NewDebouncer(time.Second, clock, nil, dispatch, zap.NewNop())

	d.Offer(event("orders", "1"))
	d.Close()
	clock.Advance(time.Second)

	assertNoJob(t, jobs)
	assert.Zero(t, d.Pending())

	// Events after close are ignored.
	d.Offer(event("orders", "2"))
	assert.Zero(t, d.Pending())
}
