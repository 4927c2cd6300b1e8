package service

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"om-intel-chat/internal/model"
	"om-intel-chat/internal/repository"
)

// ThreadService 定义了会话线程的查询操作。
type ThreadService interface {
	ListThreads(ctx context.Context, ownerID string) ([]model.Thread, error)
	ListMessages(ctx context.Context, ownerID, threadID string) ([]model.Message, error)
}

type threadService struct {
	repo repository.ThreadRepository
}

// NewThreadService 创建一个新的 ThreadService。
func NewThreadService(repo repository.ThreadRepository) ThreadService {
	return &threadService{repo: repo}
}

// ListThreads 获取用户的会话列表，最近更新的在前。
func (s *threadService) ListThreads(ctx context.Context, ownerID string) ([]model.Thread, error) {
	threads, err := s.repo.ListThreads(ctx, ownerID)
	if err != nil {
		return nil, wrapError(ErrPersistence, err, "failed to list threads")
	}
	if threads == nil {
		threads = []model.Thread{}
	}
	return threads, nil
}

// ListMessages 获取会话的完整消息历史，他人的会话视为不存在。
func (s *threadService) ListMessages(ctx context.Context, ownerID, threadID string) ([]model.Message, error) {
	thread, err := s.repo.FindThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, "thread not found")
		}
		return nil, wrapError(ErrPersistence, err, "failed to load thread")
	}
	if thread.OwnerID != ownerID {
		return nil, newError(ErrNotFound, "thread not found")
	}
	msgs, err := s.repo.ListMessages(ctx, thread.ID)
	if err != nil {
		return nil, wrapError(ErrPersistence, err, "failed to load messages")
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}
