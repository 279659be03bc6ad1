package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skyfay/dbackup/internal/db"
)

type gormChannelRepository struct {
	db *gorm.DB
}

// NewChannelRepository returns a ChannelRepository backed by the provided *gorm.DB.
func NewChannelRepository(gdb *gorm.DB) ChannelRepository {
	return &gormChannelRepository{db: gdb}
}

func (r *gormChannelRepository) Create(ctx context.Context, channel *db.Channel) error {
	if err := r.db.WithContext(ctx).Create(channel).Error; err != nil {
		return fmt.Errorf("channels: create: %w", err)
	}
	return nil
}

func (r *gormChannelRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Channel, error) {
	var ch db.Channel
	err := r.db.WithContext(ctx).First(&ch, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("channels: get by id: %w", err)
	}
	return &ch, nil
}

func (r *gormChannelRepository) Update(ctx context.Context, channel *db.Channel) error {
	result := r.db.WithContext(ctx).Save(channel)
	if result.Error != nil {
		return fmt.Errorf("channels: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormChannelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Channel{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("channels: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormChannelRepository) List(ctx context.Context, opts ListOptions) ([]db.Channel, int64, error) {
	var channels []db.Channel
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Channel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("channels: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&channels).Error; err != nil {
		return nil, 0, fmt.Errorf("channels: list: %w", err)
	}

	return channels, total, nil
}

func (r *gormChannelRepository) ListEnabled(ctx context.Context) ([]db.Channel, error) {
	var channels []db.Channel
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("channels: list enabled: %w", err)
	}
	return channels, nil
}
