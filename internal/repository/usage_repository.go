package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"om-intel-chat/internal/model"
)

// UsageRepository 记录和统计计量操作。
type UsageRepository interface {
	Record(ctx context.Context, entry *model.UsageLog) error
	CountSince(ctx context.Context, userID string, action model.UsageAction, since time.Time) (int64, error)
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository 创建一个新的 UsageRepository 实例。
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) Record(ctx context.Context, entry *model.UsageLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *usageRepository) CountSince(ctx context.Context, userID string, action model.UsageAction, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.UsageLog{}).
		Where("user_id = ? AND action = ? AND created_at >= ?", userID, action, since).
		Count(&count).Error
	return count, err
}
