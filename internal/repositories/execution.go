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

// gormExecutionRepository is the GORM implementation of ExecutionRepository.
type gormExecutionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository returns an ExecutionRepository backed by the
// provided *gorm.DB.
func NewExecutionRepository(gdb *gorm.DB) ExecutionRepository {
	return &gormExecutionRepository{db: gdb}
}

func (r *gormExecutionRepository) Create(ctx context.Context, execution *db.Execution) error {
	if err := r.db.WithContext(ctx).Create(execution).Error; err != nil {
		return fmt.Errorf("executions: create: %w", err)
	}
	return nil
}

func (r *gormExecutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Execution, error) {
	var execution db.Execution
	err := r.db.WithContext(ctx).First(&execution, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("executions: get by id: %w", err)
	}
	return &execution, nil
}

func (r *gormExecutionRepository) GetByIDWithDestinations(ctx context.Context, id uuid.UUID) (*db.Execution, []db.ExecutionDestination, error) {
	var execution db.Execution
	err := r.db.WithContext(ctx).First(&execution, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("executions: get by id with destinations: %w", err)
	}

	var destinations []db.ExecutionDestination
	if err := r.db.WithContext(ctx).
		Where("execution_id = ?", id).
		Find(&destinations).Error; err != nil {
		return nil, nil, fmt.Errorf("executions: get destinations for execution %s: %w", id, err)
	}

	return &execution, destinations, nil
}

func (r *gormExecutionRepository) Update(ctx context.Context, execution *db.Execution) error {
	result := r.db.WithContext(ctx).Save(execution)
	if result.Error != nil {
		return fmt.Errorf("executions: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus updates only the status/ended_at/error fields, called at the
// end of a run to avoid racing with concurrent destination-result writes.
func (r *gormExecutionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, endedAt *time.Time, errMsg string) error {
	result := r.db.WithContext(ctx).
		Model(&db.Execution{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   status,
			"ended_at": endedAt,
			"error":    errMsg,
		})
	if result.Error != nil {
		return fmt.Errorf("executions: update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormExecutionRepository) List(ctx context.Context, opts ListOptions) ([]db.Execution, int64, error) {
	var executions []db.Execution
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Execution{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("executions: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&executions).Error; err != nil {
		return nil, 0, fmt.Errorf("executions: list: %w", err)
	}

	return executions, total, nil
}

func (r *gormExecutionRepository) ListByJob(ctx context.Context, jobID uuid.UUID, opts ListOptions) ([]db.Execution, int64, error) {
	var executions []db.Execution
	var total int64

	if err := r.db.WithContext(ctx).
		Model(&db.Execution{}).
		Where("job_id = ?", jobID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("executions: list by job count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&executions).Error; err != nil {
		return nil, 0, fmt.Errorf("executions: list by job: %w", err)
	}

	return executions, total, nil
}

func (r *gormExecutionRepository) CreateDestination(ctx context.Context, ed *db.ExecutionDestination) error {
	if err := r.db.WithContext(ctx).Create(ed).Error; err != nil {
		return fmt.Errorf("executions: create destination: %w", err)
	}
	return nil
}

func (r *gormExecutionRepository) ListDestinationsByExecution(ctx context.Context, executionID uuid.UUID) ([]db.ExecutionDestination, error) {
	var destinations []db.ExecutionDestination
	if err := r.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Find(&destinations).Error; err != nil {
		return nil, fmt.Errorf("executions: list destinations by execution: %w", err)
	}
	return destinations, nil
}

// UpdateDestination persists the full ExecutionDestination row, used by the
// runner once an individual destination's upload completes or fails.
func (r *gormExecutionRepository) UpdateDestination(ctx context.Context, ed *db.ExecutionDestination) error {
	result := r.db.WithContext(ctx).Save(ed)
	if result.Error != nil {
		return fmt.Errorf("executions: update destination: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
