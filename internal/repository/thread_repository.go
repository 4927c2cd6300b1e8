package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"om-intel-chat/internal/model"
)

// ThreadRepository 定义了对话线程和消息的持久化操作。
type ThreadRepository interface {
	CreateThread(ctx context.Context, thread *model.Thread) error
	FindThread(ctx context.Context, id string) (*model.Thread, error)
	ListThreads(ctx context.Context, ownerID string) ([]model.Thread, error)
	// CreateTurn 在同一事务中依次写入用户消息和空的助手占位消息。
	CreateTurn(ctx context.Context, userMsg, placeholder *model.Message) error
	// UpdateMessage 一次性写入助手消息的最终内容和状态。
	UpdateMessage(ctx context.Context, id, content string, status model.MessageStatus) error
	// RecentMessages 返回线程中最近 limit 条已完成的消息，按时间正序。
	RecentMessages(ctx context.Context, threadID string, limit int) ([]model.Message, error)
	ListMessages(ctx context.Context, threadID string) ([]model.Message, error)
}

type threadRepository struct {
	db *gorm.DB
}

// NewThreadRepository 创建一个新的 ThreadRepository 实例。
func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) CreateThread(ctx context.Context, thread *model.Thread) error {
	return r.db.WithContext(ctx).Create(thread).Error
}

func (r *threadRepository) FindThread(ctx context.Context, id string) (*model.Thread, error) {
	var thread model.Thread
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&thread).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *threadRepository) ListThreads(ctx context.Context, ownerID string) ([]model.Thread, error) {
	var threads []model.Thread
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("updated_at desc").Find(&threads).Error
	return threads, err
}

func (r *threadRepository) CreateTurn(ctx context.Context, userMsg, placeholder *model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}
		if err := tx.Create(placeholder).Error; err != nil {
			return err
		}
		// 刷新线程的 updated_at，让最近活跃的线程排在前面
		return tx.Model(&model.Thread{}).Where("id = ?", userMsg.ThreadID).Update("updated_at", time.Now()).Error
	})
}

func (r *threadRepository) UpdateMessage(ctx context.Context, id, content string, status model.MessageStatus) error {
	return r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).Updates(map[string]interface{}{
		"content": content,
		"status":  status,
	}).Error
}

func (r *threadRepository) RecentMessages(ctx context.Context, threadID string, limit int) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.WithContext(ctx).
		Where("thread_id = ? AND status = ?", threadID, model.MessageComplete).
		Order("created_at desc").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	// 倒序查询后翻转为时间正序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *threadRepository) ListMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Order("created_at asc").Find(&msgs).Error
	return msgs, err
}
