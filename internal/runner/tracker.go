package runner

import (
	"sync"

	"github.com/google/uuid"
)

// liveProgress is the most recent progress report for a run still in flight.
type liveProgress struct {
	percent float64
	stage   Stage
}

// Tracker holds in-flight progress for currently running executions, keyed
// by job ID rather than execution ID: the scheduler's per-job mutex (spec
// §4.6) guarantees at most one execution per job at a time, and the
// execution row itself is not known to the caller until resolve() commits
// it, whereas the job ID is known up front. The persisted Execution row
// only gains its final Status/Error/LogLines at Finalize (spec §4.7
// "append-only in spirit"), so a caller polling GET
// /api/executions/{executionId} while the run is still active reads live
// progress from here instead of the database.
type Tracker struct {
	mu    sync.Mutex
	byJob map[uuid.UUID]liveProgress
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{byJob: make(map[uuid.UUID]liveProgress)}
}

// Track returns a ProgressFunc that records progress for jobID. Pass the
// result as the progress argument to Runner.Run.
func (t *Tracker) Track(jobID uuid.UUID) ProgressFunc {
	return func(percent float64, stage Stage) {
		t.mu.Lock()
		t.byJob[jobID] = liveProgress{percent: percent, stage: stage}
		t.mu.Unlock()
	}
}

// Clear removes any tracked progress for jobID. Callers invoke this once
// Runner.Run returns, win or lose, so a finished job's last in-memory
// progress value does not linger and get mistaken for a new run.
func (t *Tracker) Clear(jobID uuid.UUID) {
	t.mu.Lock()
	delete(t.byJob, jobID)
	t.mu.Unlock()
}

// Snapshot returns the last reported percent and stage for jobID, and
// whether a run is currently tracked for it.
func (t *Tracker) Snapshot(jobID uuid.UUID) (percent float64, stage Stage, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	lp, ok := t.byJob[jobID]
	return lp.percent, lp.stage, ok
}
