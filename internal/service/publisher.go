package service

import (
	"context"

	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/realtime"
)

// ChangePublisher 发布行变更通知。
type ChangePublisher interface {
	Publish(ctx context.Context, ownerID, table string, typ realtime.ChangeType, record any) error
}

const documentsTable = "documents"

// publishChange 发布通知，失败只记录日志。
func publishChange(ctx context.Context, pub ChangePublisher, ownerID, table string, typ realtime.ChangeType, record any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ownerID, table, typ, record); err != nil {
		log.Warnf("[Realtime] 发布变更通知失败: table=%s, owner=%s, type=%s, err=%v", table, ownerID, typ, err)
	}
}
