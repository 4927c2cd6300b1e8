package repository

import (
	"gorm.io/gorm"
	"om-intel-chat/internal/model"
)

// AutoMigrate 创建或更新所有表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Document{},
		&model.Thread{},
		&model.Message{},
		&model.ExtractionJob{},
		&model.UsageLog{},
	)
}
