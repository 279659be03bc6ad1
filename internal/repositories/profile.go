package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skyfay/dbackup/internal/db"
)

type gormEncryptionProfileRepository struct {
	db *gorm.DB
}

// NewEncryptionProfileRepository returns an EncryptionProfileRepository
// backed by the provided *gorm.DB.
func NewEncryptionProfileRepository(gdb *gorm.DB) EncryptionProfileRepository {
	return &gormEncryptionProfileRepository{db: gdb}
}

func (r *gormEncryptionProfileRepository) Create(ctx context.Context, profile *db.EncryptionProfile) error {
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("encryption_profiles: create: %w", err)
	}
	return nil
}

func (r *gormEncryptionProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.EncryptionProfile, error) {
	var profile db.EncryptionProfile
	err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("encryption_profiles: get by id: %w", err)
	}
	return &profile, nil
}

func (r *gormEncryptionProfileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.EncryptionProfile{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("encryption_profiles: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormEncryptionProfileRepository) List(ctx context.Context, opts ListOptions) ([]db.EncryptionProfile, int64, error) {
	var profiles []db.EncryptionProfile
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.EncryptionProfile{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("encryption_profiles: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&profiles).Error; err != nil {
		return nil, 0, fmt.Errorf("encryption_profiles: list: %w", err)
	}

	return profiles, total, nil
}
