package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skyfay/dbackup/internal/db"
)

// gormStorageSnapshotRepository is the GORM implementation of
// StorageSnapshotRepository.
type gormStorageSnapshotRepository struct {
	db *gorm.DB
}

// NewStorageSnapshotRepository returns a StorageSnapshotRepository backed by
// the provided *gorm.DB.
func NewStorageSnapshotRepository(gdb *gorm.DB) StorageSnapshotRepository {
	return &gormStorageSnapshotRepository{db: gdb}
}

// Create inserts a new usage sample, taken by the alert monitor on each poll.
func (r *gormStorageSnapshotRepository) Create(ctx context.Context, snapshot *db.StorageSnapshot) error {
	if err := r.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return fmt.Errorf("storage_snapshots: create: %w", err)
	}
	return nil
}

// ListByDestination returns the most recent limit samples for a destination,
// ordered newest first, so the alert monitor can compare against history.
func (r *gormStorageSnapshotRepository) ListByDestination(ctx context.Context, destinationID uuid.UUID, limit int) ([]db.StorageSnapshot, error) {
	var snapshots []db.StorageSnapshot
	if err := r.db.WithContext(ctx).
		Where("destination_id = ?", destinationID).
		Order("sampled_at DESC").
		Limit(limit).
		Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("storage_snapshots: list by destination: %w", err)
	}
	return snapshots, nil
}

// LatestByDestination returns the single most recent sample for a destination.
// Returns ErrNotFound if no sample has ever been taken.
func (r *gormStorageSnapshotRepository) LatestByDestination(ctx context.Context, destinationID uuid.UUID) (*db.StorageSnapshot, error) {
	var snapshot db.StorageSnapshot
	err := r.db.WithContext(ctx).
		Where("destination_id = ?", destinationID).
		Order("sampled_at DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage_snapshots: latest by destination: %w", err)
	}
	return &snapshot, nil
}

// DeleteOlderThan prunes samples older than t. Nothing in this module calls
// it, so samples accumulate until a caller does.
func (r *gormStorageSnapshotRepository) DeleteOlderThan(ctx context.Context, t time.Time) error {
	if err := r.db.WithContext(ctx).
		Where("sampled_at < ?", t).
		Delete(&db.StorageSnapshot{}).Error; err != nil {
		return fmt.Errorf("storage_snapshots: delete older than: %w", err)
	}
	return nil
}
