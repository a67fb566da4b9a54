package trigger

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// windowState tracks the per-table debounce state machine:
// Idle -> Buffering -> Dispatching -> Idle.
type windowState int

const (
	stateIdle windowState = iota
	stateBuffering
	stateDispatching
)

// Dispatch receives coalesced jobs when a debounce window elapses.
type Dispatch func(Job)

// Resolver maps a source table to the resource IDs it backs.
type Resolver func(sourceTable string) []string

// Debouncer coalesces events per source table.
//
// Each table has an independent window. The first event opens it; further
// events for the same table extend it. Only when the window elapses with no
// new events is a single job dispatched, carrying every buffered key
// deduplicated. Windows for different tables run concurrently.
type Debouncer struct {
	delay    time.Duration
	clock    Clock
	resolve  Resolver
	dispatch Dispatch
	logger   *zap.Logger

	mu      sync.Mutex
	windows map[string]*window
	closed  bool
}

type window struct {
	state     windowState
	timer     Timer
	keys      map[string]struct{}
	events    int
	lastEvent time.Time
}

// NewDebouncer creates a debouncer with the given window duration. A nil
// resolver maps each table to itself as the single affected resource.
func NewDebouncer(delay time.Duration, clock Clock, resolve Resolver, dispatch Dispatch, logger *zap.Logger) *Debouncer {
	if clock == nil {
		clock = RealClock()
	}
	if resolve == nil {
		resolve = func(table string) []string { return []string{table} }
	}
	return &Debouncer{
		delay:    delay,
		clock:    clock,
		resolve:  resolve,
		dispatch: dispatch,
		logger:   logger,
		windows:  make(map[string]*window),
	}
}

// Offer feeds one event into the table's debounce window, opening it if the
// table was idle and extending it otherwise.
func (d *Debouncer) Offer(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	w, ok := d.windows[ev.SourceTable]
	if !ok {
		w = &window{
			state: stateBuffering,
			keys:  make(map[string]struct{}),
			timer: d.clock.NewTimer(d.delay),
		}
		d.windows[ev.SourceTable] = w
		go d.run(ev.SourceTable, w.timer)
	}

	for _, key := range ev.AffectedKeys {
		w.keys[key] = struct{}{}
	}
	w.events++
	w.lastEvent = d.clock.Now()
}

// run waits for the table's window to elapse, re-arming whenever events
// extended it, then dispatches one coalesced job.
func (d *Debouncer) run(table string, timer Timer) {
	for range timer.C() {
		d.mu.Lock()
		w, ok := d.windows[table]
		if !ok || d.closed {
			d.mu.Unlock()
			return
		}

		// An event arrived after the timer was armed; the window is
		// extended, not elapsed.
		remaining := d.delay - d.clock.Now().Sub(w.lastEvent)
		if remaining > 0 {
			timer.Reset(remaining)
			d.mu.Unlock()
			continue
		}

		w.state = stateDispatching
		job := d.buildJob(table, w)
		delete(d.windows, table)
		d.mu.Unlock()

		d.dispatch(job)
		return
	}
}

// buildJob collapses a window into one job. Caller holds the lock.
func (d *Debouncer) buildJob(table string, w *window) Job {
	keys := make([]string, 0, len(w.keys))
	for key := range w.keys {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	job := Job{
		ID:           uuid.NewString(),
		SourceTable:  table,
		ResourceIDs:  d.resolve(table),
		AffectedKeys: keys,
		Events:       w.events,
	}
	d.logger.Debug("debounce window elapsed",
		zap.String("source_table", table),
		zap.Int("events", w.events),
		zap.Int("affected_keys", len(keys)))
	return job
}

// Pending returns the number of open windows. Used by tests and shutdown
// logging.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.windows)
}

// Close stops all open windows without dispatching. Buffered events are
// ephemeral by contract; a restart recovers via a full re-index.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for table, w := range d.windows {
		w.timer.Stop()
		delete(d.windows, table)
	}
}
