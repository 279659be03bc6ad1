// Package alertmonitor implements the storage alert monitor (spec §4.9): a
// periodic sampler that snapshots each destination's usage and evaluates
// three conditions against operator-tuned thresholds (usage spike, storage
// limit, missing backup), de-duplicating repeat alerts with a persisted
// active/cooldown state. Per-destination thresholds are read the same way
// notification channel config is: a small JSON blob on the owning row,
// alongside the destination-scoped AlertState record the orchestrator's
// schema carries for this purpose.
package alertmonitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyfay/dbackup/internal/db"
	"github.com/skyfay/dbackup/internal/notification"
	"github.com/skyfay/dbackup/internal/repositories"
	"github.com/skyfay/dbackup/internal/storage"
)

// missingBackupHistoryWindow bounds how far back evaluateMissingBackup walks
// to find the last artifact-count change. 180 samples covers roughly a
// week of 1-hour polling without an unbounded query.
const missingBackupHistoryWindow = 180

const (
	// defaultCooldown is the minimum time between repeat notifications for an
	// alert that is still active (spec §4.9 "24-hour cooldown").
	defaultCooldown = 24 * time.Hour

	kindSpike          = "spike"
	kindLimit          = "limit"
	kindMissingBackup  = "missing_backup"
)

// Thresholds are the operator-tuned settings that decide when each condition
// fires. They are read from a "alerts" object nested in Destination.Config,
// alongside the adapter-specific fields storage.New reads from the same
// column; unmarshaling into this narrow struct ignores any sibling keys.
type Thresholds struct {
	SpikePercent       float64 `json:"spikePercent"`       // default 50: |delta| / previous >= this
	LimitBytes         int64   `json:"limitBytes"`         // 0 disables the limit check
	MissingBackupHours float64 `json:"missingBackupHours"` // default 26
}

func defaultThresholds() Thresholds {
	return Thresholds{SpikePercent: 50, LimitBytes: 0, MissingBackupHours: 26}
}

type destinationConfig struct {
	Alerts Thresholds `json:"alerts"`
}

func parseThresholds(configJSON string) Thresholds {
	t := defaultThresholds()
	if configJSON == "" {
		return t
	}
	var cfg destinationConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return t
	}
	if cfg.Alerts.SpikePercent > 0 {
		t.SpikePercent = cfg.Alerts.SpikePercent
	}
	if cfg.Alerts.LimitBytes > 0 {
		t.LimitBytes = cfg.Alerts.LimitBytes
	}
	if cfg.Alerts.MissingBackupHours > 0 {
		t.MissingBackupHours = cfg.Alerts.MissingBackupHours
	}
	return t
}

// Monitor periodically snapshots destination usage and raises notification
// events when a condition transitions inactive -> active.
type Monitor struct {
	destinations repositories.DestinationRepository
	snapshots    repositories.StorageSnapshotRepository
	alerts       repositories.AlertStateRepository
	notify       notification.Service
	logger       *zap.Logger
	cooldown     time.Duration
}

// New builds a Monitor. cooldown <= 0 falls back to the default (24h).
func New(
	destinations repositories.DestinationRepository,
	snapshots repositories.StorageSnapshotRepository,
	alerts repositories.AlertStateRepository,
	notify notification.Service,
	cooldown time.Duration,
	logger *zap.Logger,
) *Monitor {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Monitor{
		destinations: destinations,
		snapshots:    snapshots,
		alerts:       alerts,
		notify:       notify,
		cooldown:     cooldown,
		logger:       logger.Named("alertmonitor"),
	}
}

// RunOnce samples and evaluates every enabled destination. The daemon calls
// it from a background timer; the runner's finalize step does not call it.
// Per-destination errors are logged and do not stop the remaining sweep.
func (m *Monitor) RunOnce(ctx context.Context) {
	dests, err := m.destinations.ListEnabled(ctx)
	if err != nil {
		m.logger.Error("failed to list destinations", zap.Error(err))
		return
	}

	for i := range dests {
		dest := &dests[i]
		if err := m.sampleAndEvaluate(ctx, dest); err != nil {
			m.logger.Error("alert monitor sweep failed for destination",
				zap.String("destination_id", dest.ID.String()),
				zap.String("destination_name", dest.Name),
				zap.Error(err),
			)
		}
	}
}

func (m *Monitor) sampleAndEvaluate(ctx context.Context, dest *db.Destination) error {
	snap, err := m.sample(ctx, dest)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}

	thresholds := parseThresholds(dest.Config)
	history, err := m.snapshots.ListByDestination(ctx, dest.ID, 2)
	if err != nil {
		return fmt.Errorf("loading snapshot history: %w", err)
	}

	if err := m.evaluateSpike(ctx, dest, thresholds, history, snap); err != nil {
		m.logger.Warn("spike evaluation failed", zap.Error(err))
	}
	if err := m.evaluateLimit(ctx, dest, thresholds, snap); err != nil {
		m.logger.Warn("limit evaluation failed", zap.Error(err))
	}
	if err := m.evaluateMissingBackup(ctx, dest, thresholds); err != nil {
		m.logger.Warn("missing-backup evaluation failed", zap.Error(err))
	}
	return nil
}

// evaluateSpike compares the last two snapshots: |delta size| / previous
// size >= thresholds.SpikePercent (spec §4.9).
func (m *Monitor) evaluateSpike(ctx context.Context, dest *db.Destination, t Thresholds, history []db.StorageSnapshot, current *db.StorageSnapshot) error {
	if len(history) < 2 || history[1].TotalBytes == 0 {
		return m.applyAlert(ctx, dest.ID, kindSpike, false, nil)
	}

	previous := history[1]
	delta := float64(current.TotalBytes-previous.TotalBytes) / float64(previous.TotalBytes) * 100
	if delta < 0 {
		delta = -delta
	}

	active := delta >= t.SpikePercent
	return m.applyAlert(ctx, dest.ID, kindSpike, active, func() {
		if m.notify == nil {
			return
		}
		if err := m.notify.NotifyStorageUsageSpike(ctx, dest.Name, delta); err != nil {
			m.logger.Warn("failed to dispatch spike notification", zap.Error(err))
		}
	})
}

// evaluateLimit fires when currentSize / configuredLimit >= 0.9 (spec §4.9).
// A zero LimitBytes disables the check for that destination.
func (m *Monitor) evaluateLimit(ctx context.Context, dest *db.Destination, t Thresholds, current *db.StorageSnapshot) error {
	if t.LimitBytes <= 0 {
		return m.applyAlert(ctx, dest.ID, kindLimit, false, nil)
	}

	usedPercent := float64(current.TotalBytes) / float64(t.LimitBytes) * 100
	active := usedPercent >= 90

	return m.applyAlert(ctx, dest.ID, kindLimit, active, func() {
		if m.notify == nil {
			return
		}
		if err := m.notify.NotifyStorageLimitWarning(ctx, dest.Name, usedPercent); err != nil {
			m.logger.Warn("failed to dispatch limit notification", zap.Error(err))
		}
	})
}

// evaluateMissingBackup walks snapshots newest-first to find the last time
// ArtifactCount changed; if now minus that timestamp >= the configured
// threshold, the destination has gone quiet for longer than expected
// (spec §4.9).
func (m *Monitor) evaluateMissingBackup(ctx context.Context, dest *db.Destination, t Thresholds) error {
	history, err := m.snapshots.ListByDestination(ctx, dest.ID, missingBackupHistoryWindow)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	lastChange := history[len(history)-1].SampledAt
	for i := 0; i < len(history)-1; i++ {
		if history[i].ArtifactCount != history[i+1].ArtifactCount {
			lastChange = history[i].SampledAt
			break
		}
	}

	hoursSince := time.Since(lastChange).Hours()
	active := hoursSince >= t.MissingBackupHours

	return m.applyAlert(ctx, dest.ID, kindMissingBackup, active, func() {
		if m.notify == nil {
			return
		}
		if err := m.notify.NotifyStorageMissingBackup(ctx, dest.Name, hoursSince); err != nil {
			m.logger.Warn("failed to dispatch missing-backup notification", zap.Error(err))
		}
	})
}

// applyAlert implements the state-machine de-duplication (spec §4.9):
// notify on an inactive -> active transition, re-notify only after the
// cooldown elapses while still active, and reset to inactive when the
// condition resolves. The store is only written when something changed.
func (m *Monitor) applyAlert(ctx context.Context, destID uuid.UUID, kind string, active bool, notify func()) error {
	state, err := m.alerts.GetOrCreate(ctx, destID, kind)
	if err != nil {
		return err
	}

	wasActive := state.Active
	prevNotifiedAt := state.LastNotifiedAt
	now := time.Now().UTC()

	switch {
	case active && !wasActive:
		state.Active = true
		state.LastNotifiedAt = &now
		if notify != nil {
			notify()
		}
	case active && wasActive:
		if state.LastNotifiedAt == nil || now.Sub(*state.LastNotifiedAt) >= m.cooldown {
			state.LastNotifiedAt = &now
			if notify != nil {
				notify()
			}
		}
	default: // !active
		state.Active = false
	}

	if state.Active == wasActive && sameInstant(state.LastNotifiedAt, prevNotifiedAt) {
		return nil
	}
	return m.alerts.Update(ctx, state)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// sample lists every object on the destination and records a StorageSnapshot.
func (m *Monitor) sample(ctx context.Context, dest *db.Destination) (*db.StorageSnapshot, error) {
	adapter, err := buildStorageAdapter(dest)
	if err != nil {
		return nil, err
	}

	objs, err := adapter.List(ctx, "backups/")
	if err != nil {
		return nil, err
	}

	var totalBytes int64
	for _, o := range objs {
		totalBytes += o.SizeBytes
	}

	snap := &db.StorageSnapshot{
		DestinationID: dest.ID,
		ArtifactCount: int64(len(objs)),
		TotalBytes:    totalBytes,
		SampledAt:     time.Now().UTC(),
	}
	if err := m.snapshots.Create(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func buildStorageAdapter(dest *db.Destination) (storage.Adapter, error) {
	return storage.New(storage.Config{
		Type:        dest.Type,
		ConfigJSON:  dest.Config,
		Credentials: string(dest.Credentials),
	})
}
