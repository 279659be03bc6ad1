package retention

import (
	"testing"
	"time"
)

func mustUTC(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPlanSimpleKeepsMostRecent(t *testing.T) {
	artifacts := []Artifact{
		{Key: "a", LastModified: mustUTC("2026-07-01")},
		{Key: "b", LastModified: mustUTC("2026-07-05")},
		{Key: "c", LastModified: mustUTC("2026-07-10")},
		{Key: "d", LastModified: mustUTC("2026-07-15")},
	}

	keep, drop := Plan(artifacts, Policy{Mode: ModeSimple, SimpleKeepCount: 2}, mustUTC("2026-07-20"))
	if len(keep) != 2 || len(drop) != 2 {
		t.Fatalf("got keep=%d drop=%d, want 2/2", len(keep), len(drop))
	}
	keepKeys := map[string]bool{keep[0].Key: true, keep[1].Key: true}
	if !keepKeys["d"] || !keepKeys["c"] {
		t.Fatalf("expected the two most recent artifacts kept, got %+v", keep)
	}
}

func TestPlanSimpleLockedNeverConsumesCapacity(t *testing.T) {
	artifacts := []Artifact{
		{Key: "locked-old", LastModified: mustUTC("2020-01-01"), Locked: true},
		{Key: "a", LastModified: mustUTC("2026-07-01")},
		{Key: "b", LastModified: mustUTC("2026-07-05")},
	}

	keep, drop := Plan(artifacts, Policy{Mode: ModeSimple, SimpleKeepCount: 1}, mustUTC("2026-07-20"))
	if len(keep) != 2 {
		t.Fatalf("expected locked artifact plus one unlocked kept, got %d: %+v", len(keep), keep)
	}
	if len(drop) != 1 || drop[0].Key != "a" {
		t.Fatalf("expected older unlocked artifact dropped, got %+v", drop)
	}
}

func TestPlanSmartSingleArtifactSingleKeep(t *testing.T) {
	artifacts := []Artifact{
		{Key: "only", LastModified: mustUTC("2026-07-15")},
	}
	policy := Policy{Mode: ModeSmart, Daily: 1, Weekly: 1, Monthly: 1, Yearly: 1}

	keep, drop := Plan(artifacts, policy, mustUTC("2026-07-29"))
	if len(keep) != 1 || len(drop) != 0 {
		t.Fatalf("expected exactly one keep and zero deletes, got keep=%d drop=%d", len(keep), len(drop))
	}
}

func TestPlanSmartNoCrossBucketDoubleCounting(t *testing.T) {
	// Two artifacts in the same ISO week with room for two daily slots: each
	// takes its own daily slot, and since an artifact occupies at most one
	// slot, neither also takes the weekly slot.
	artifacts := []Artifact{
		{Key: "mon", LastModified: mustUTC("2026-07-20")}, // Monday of week 30
		{Key: "wed", LastModified: mustUTC("2026-07-22")}, // Wednesday of week 30
	}
	policy := Policy{Mode: ModeSmart, Daily: 2, Weekly: 1, Monthly: 0, Yearly: 0}

	keep, drop := Plan(artifacts, policy, mustUTC("2026-07-29"))
	if len(keep) != 2 {
		t.Fatalf("expected both placed via daily capacity, got keep=%d drop=%d", len(keep), len(drop))
	}
}

func TestPlanSmartWeeklyCapacityExhausted(t *testing.T) {
	artifacts := []Artifact{
		{Key: "newer", LastModified: mustUTC("2026-07-22")},
		{Key: "older-same-week", LastModified: mustUTC("2026-07-20")},
	}
	policy := Policy{Mode: ModeSmart, Daily: 0, Weekly: 1, Monthly: 0, Yearly: 0}

	keep, drop := Plan(artifacts, policy, mustUTC("2026-07-29"))
	if len(keep) != 1 || keep[0].Key != "newer" {
		t.Fatalf("expected only the newer same-week artifact kept, got %+v", keep)
	}
	if len(drop) != 1 || drop[0].Key != "older-same-week" {
		t.Fatalf("expected the older same-week artifact dropped, got %+v", drop)
	}
}
