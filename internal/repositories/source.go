package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skyfay/dbackup/internal/db"
)

type gormSourceRepository struct {
	db *gorm.DB
}

// NewSourceRepository returns a SourceRepository backed by the provided *gorm.DB.
func NewSourceRepository(gdb *gorm.DB) SourceRepository {
	return &gormSourceRepository{db: gdb}
}

func (r *gormSourceRepository) Create(ctx context.Context, source *db.Source) error {
	if err := r.db.WithContext(ctx).Create(source).Error; err != nil {
		return fmt.Errorf("sources: create: %w", err)
	}
	return nil
}

func (r *gormSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Source, error) {
	var source db.Source
	err := r.db.WithContext(ctx).First(&source, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sources: get by id: %w", err)
	}
	return &source, nil
}

func (r *gormSourceRepository) Update(ctx context.Context, source *db.Source) error {
	result := r.db.WithContext(ctx).Save(source)
	if result.Error != nil {
		return fmt.Errorf("sources: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Source{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("sources: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormSourceRepository) List(ctx context.Context, opts ListOptions) ([]db.Source, int64, error) {
	var sources []db.Source
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Source{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("sources: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&sources).Error; err != nil {
		return nil, 0, fmt.Errorf("sources: list: %w", err)
	}

	return sources, total, nil
}
