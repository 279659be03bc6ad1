package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skyfay/dbackup/internal/db"
)

type gormNotificationLogRepository struct {
	db *gorm.DB
}

// NewNotificationLogRepository returns a NotificationLogRepository backed by
// the provided *gorm.DB.
func NewNotificationLogRepository(gdb *gorm.DB) NotificationLogRepository {
	return &gormNotificationLogRepository{db: gdb}
}

func (r *gormNotificationLogRepository) Create(ctx context.Context, log *db.NotificationLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("notification_logs: create: %w", err)
	}
	return nil
}

func (r *gormNotificationLogRepository) ListByChannel(ctx context.Context, channelID uuid.UUID, opts ListOptions) ([]db.NotificationLog, int64, error) {
	var logs []db.NotificationLog
	var total int64

	q := r.db.WithContext(ctx).Model(&db.NotificationLog{}).Where("channel_id = ?", channelID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification_logs: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("notification_logs: list: %w", err)
	}

	return logs, total, nil
}
