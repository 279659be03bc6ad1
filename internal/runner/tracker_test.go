package runner

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestTrackerSnapshotMissingJob(t *testing.T) {
	tr := NewTracker()
	jobID := uuid.New()

	if _, _, ok := tr.Snapshot(jobID); ok {
		t.Fatal("expected no snapshot for an untracked job")
	}
}

func TestTrackerTrackAndSnapshot(t *testing.T) {
	tr := NewTracker()
	jobID := uuid.New()

	report := tr.Track(jobID)
	report(50, StageDump)

	pct, stage, ok := tr.Snapshot(jobID)
	if !ok {
		t.Fatal("expected a snapshot after reporting progress")
	}
	if pct != 50 || stage != StageDump {
		t.Fatalf("got (%v, %v), want (50, %v)", pct, stage, StageDump)
	}

	report(90, StageUpload)
	pct, stage, ok = tr.Snapshot(jobID)
	if !ok || pct != 90 || stage != StageUpload {
		t.Fatalf("got (%v, %v, %v), want (90, %v, true)", pct, stage, ok, StageUpload)
	}
}

func TestTrackerClear(t *testing.T) {
	tr := NewTracker()
	jobID := uuid.New()

	tr.Track(jobID)(100, StageFinalize)
	tr.Clear(jobID)

	if _, _, ok := tr.Snapshot(jobID); ok {
		t.Fatal("expected no snapshot after Clear")
	}
}

func TestTrackerIsolatesJobs(t *testing.T) {
	tr := NewTracker()
	jobA, jobB := uuid.New(), uuid.New()

	tr.Track(jobA)(10, StageDump)
	tr.Track(jobB)(20, StageUpload)

	pctA, _, _ := tr.Snapshot(jobA)
	pctB, _, _ := tr.Snapshot(jobB)
	if pctA != 10 || pctB != 20 {
		t.Fatalf("jobs clobbered each other: A=%v B=%v", pctA, pctB)
	}

	tr.Clear(jobA)
	if _, _, ok := tr.Snapshot(jobA); ok {
		t.Fatal("expected jobA cleared")
	}
	if _, _, ok := tr.Snapshot(jobB); !ok {
		t.Fatal("expected jobB to remain tracked")
	}
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	jobID := uuid.New()
	report := tr.Track(jobID)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			report(float64(i), StageDump)
			tr.Snapshot(jobID)
		}(i)
	}
	wg.Wait()

	if _, _, ok := tr.Snapshot(jobID); !ok {
		t.Fatal("expected job still tracked after concurrent writers")
	}
}
