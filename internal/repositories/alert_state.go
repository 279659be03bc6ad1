package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skyfay/dbackup/internal/db"
)

// gormAlertStateRepository is the GORM implementation of AlertStateRepository.
type gormAlertStateRepository struct {
	db *gorm.DB
}

// NewAlertStateRepository returns an AlertStateRepository backed by the
// provided *gorm.DB.
func NewAlertStateRepository(gdb *gorm.DB) AlertStateRepository {
	return &gormAlertStateRepository{db: gdb}
}

// GetOrCreate returns the existing alert state for (destinationID, kind), or
// creates an inactive one if none exists yet. The monitor mutates the
// returned value and calls Update to persist the new state.
func (r *gormAlertStateRepository) GetOrCreate(ctx context.Context, destinationID uuid.UUID, kind string) (*db.AlertState, error) {
	var state db.AlertState
	err := r.db.WithContext(ctx).
		Where("destination_id = ? AND kind = ?", destinationID, kind).
		First(&state).Error
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("alert_states: get or create: %w", err)
	}

	state = db.AlertState{DestinationID: destinationID, Kind: kind, Active: false}
	if err := r.db.WithContext(ctx).Create(&state).Error; err != nil {
		return nil, fmt.Errorf("alert_states: create: %w", err)
	}
	return &state, nil
}

// Update persists the full alert state row.
func (r *gormAlertStateRepository) Update(ctx context.Context, state *db.AlertState) error {
	result := r.db.WithContext(ctx).Save(state)
	if result.Error != nil {
		return fmt.Errorf("alert_states: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
