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

// gormJobRepository is the GORM implementation of JobRepository.
type gormJobRepository struct {
	db *gorm.DB
}

// NewJobRepository returns a JobRepository backed by the provided *gorm.DB.
func NewJobRepository(gdb *gorm.DB) JobRepository {
	return &gormJobRepository{db: gdb}
}

func (r *gormJobRepository) Create(ctx context.Context, job *db.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("jobs: create: %w", err)
	}
	return nil
}

func (r *gormJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Job, error) {
	var job db.Job
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("jobs: get by id: %w", err)
	}
	return &job, nil
}

// GetByIDWithDestinations retrieves a job together with its JobDestination
// records via a second query (see db/models.go for the uuid-FK rationale).
func (r *gormJobRepository) GetByIDWithDestinations(ctx context.Context, id uuid.UUID) (*db.Job, []db.JobDestination, error) {
	var job db.Job
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("jobs: get by id with destinations: %w", err)
	}

	var destinations []db.JobDestination
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", id).
		Order("priority ASC").
		Find(&destinations).Error; err != nil {
		return nil, nil, fmt.Errorf("jobs: get destinations for job %s: %w", id, err)
	}

	return &job, destinations, nil
}

func (r *gormJobRepository) Update(ctx context.Context, job *db.Job) error {
	result := r.db.WithContext(ctx).Save(job)
	if result.Error != nil {
		return fmt.Errorf("jobs: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormJobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Job{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("jobs: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormJobRepository) List(ctx context.Context, opts ListOptions) ([]db.Job, int64, error) {
	var jobs []db.Job
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Job{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("jobs: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("jobs: list: %w", err)
	}

	return jobs, total, nil
}

// ListEnabled returns every enabled job, loaded by the scheduler at startup
// and on Reload.
func (r *gormJobRepository) ListEnabled(ctx context.Context) ([]db.Job, error) {
	var jobs []db.Job
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("jobs: list enabled: %w", err)
	}
	return jobs, nil
}

// UpdateSchedule updates only the last_run_at/next_run_at timestamps,
// called by the runner's finalize stage without disturbing other fields.
func (r *gormJobRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.Job{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_at": lastRunAt,
			"next_run_at": nextRunAt,
		})
	if result.Error != nil {
		return fmt.Errorf("jobs: update schedule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddDestination inserts a new job-destination link.
func (r *gormJobRepository) AddDestination(ctx context.Context, jd *db.JobDestination) error {
	if err := r.db.WithContext(ctx).Create(jd).Error; err != nil {
		return fmt.Errorf("jobs: add destination: %w", err)
	}
	return nil
}

// RemoveDestination deletes a job-destination link.
func (r *gormJobRepository) RemoveDestination(ctx context.Context, jobID, destinationID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("job_id = ? AND destination_id = ?", jobID, destinationID).
		Delete(&db.JobDestination{})
	if result.Error != nil {
		return fmt.Errorf("jobs: remove destination: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
