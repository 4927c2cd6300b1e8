package model

import "time"

// UsageAction 计量的操作类型
type UsageAction string

const (
	UsageUpload   UsageAction = "upload"
	UsageChat     UsageAction = "chat"
	UsageSnapshot UsageAction = "snapshot"
)

// UsageLog 记录一次计量操作，免费额度按自然月统计 upload 记录。
type UsageLog struct {
	ID         uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string      `gorm:"type:varchar(64);index:idx_usage_user_action,priority:1;not null" json:"userId"`
	Action     UsageAction `gorm:"type:varchar(20);index:idx_usage_user_action,priority:2;not null" json:"action"`
	DocumentID *string     `gorm:"type:char(36)" json:"documentId,omitempty"`
	CreatedAt  time.Time   `gorm:"autoCreateTime;index:idx_usage_user_action,priority:3" json:"createdAt"`
}

func (UsageLog) TableName() string {
	return "usage_logs"
}
