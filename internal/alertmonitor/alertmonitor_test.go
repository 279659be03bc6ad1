package alertmonitor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/skyfay/dbackup/internal/db"
)

type fakeAlertStateRepo struct {
	states map[string]*db.AlertState
}

func newFakeAlertStateRepo() *fakeAlertStateRepo {
	return &fakeAlertStateRepo{states: make(map[string]*db.AlertState)}
}

func (f *fakeAlertStateRepo) key(destinationID uuid.UUID, kind string) string {
	return destinationID.String() + ":" + kind
}

func (f *fakeAlertStateRepo) GetOrCreate(ctx context.Context, destinationID uuid.UUID, kind string) (*db.AlertState, error) {
	k := f.key(destinationID, kind)
	if s, ok := f.states[k]; ok {
		cp := *s
		return &cp, nil
	}
	s := &db.AlertState{DestinationID: destinationID, Kind: kind}
	f.states[k] = s
	cp := *s
	return &cp, nil
}

func (f *fakeAlertStateRepo) Update(ctx context.Context, state *db.AlertState) error {
	cp := *state
	f.states[f.key(state.DestinationID, state.Kind)] = &cp
	return nil
}

func TestApplyAlertFiresOnInactiveToActiveTransition(t *testing.T) {
	repo := newFakeAlertStateRepo()
	m := &Monitor{alerts: repo, cooldown: 24 * time.Hour}
	destID := uuid.Must(uuid.NewV7())

	fired := 0
	if err := m.applyAlert(context.Background(), destID, "spike", true, func() { fired++ }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected one notification on transition, got %d", fired)
	}

	// Still active within cooldown: must not re-fire.
	if err := m.applyAlert(context.Background(), destID, "spike", true, func() { fired++ }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected no re-fire within cooldown, got %d total", fired)
	}
}

func TestApplyAlertResetsWhenConditionResolves(t *testing.T) {
	repo := newFakeAlertStateRepo()
	m := &Monitor{alerts: repo, cooldown: 24 * time.Hour}
	destID := uuid.Must(uuid.NewV7())

	if err := m.applyAlert(context.Background(), destID, "limit", true, func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.applyAlert(context.Background(), destID, "limit", false, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, _ := repo.GetOrCreate(context.Background(), destID, "limit")
	if state.Active {
		t.Fatal("expected alert to be reset to inactive once the condition resolves")
	}

	fired := 0
	if err := m.applyAlert(context.Background(), destID, "limit", true, func() { fired++ }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected a fresh transition to fire again, got %d", fired)
	}
}

func TestParseThresholdsDefaultsAndOverrides(t *testing.T) {
	d := parseThresholds("")
	if d.SpikePercent != 50 || d.MissingBackupHours != 26 {
		t.Fatalf("expected defaults, got %+v", d)
	}

	custom := parseThresholds(`{"alerts":{"spikePercent":75,"limitBytes":1000,"missingBackupHours":48}}`)
	if custom.SpikePercent != 75 || custom.LimitBytes != 1000 || custom.MissingBackupHours != 48 {
		t.Fatalf("expected overrides to apply, got %+v", custom)
	}
}
