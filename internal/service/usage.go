package service

import (
	"context"
	"time"

	"om-intel-chat/internal/model"
	"om-intel-chat/internal/repository"
	"om-intel-chat/pkg/log"
)

// recordUsage 写入计量记录，失败只记录日志。
func recordUsage(ctx context.Context, usage repository.UsageRepository, userID string, action model.UsageAction, documentID string) {
	if usage == nil {
		return
	}
	entry := &model.UsageLog{UserID: userID, Action: action}
	if documentID != "" {
		entry.DocumentID = &documentID
	}
	if err := usage.Record(ctx, entry); err != nil {
		log.Warnf("[Usage] 记录用量失败: user=%s, action=%s, err=%v", userID, action, err)
	}
}

// monthStart 返回 t 所在自然月（UTC）的第一天零点。
func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
