// Package realtime 基于 Redis Pub/Sub 广播行变更通知。
// 每个表、每个所有者一个频道，订阅者通过 Subscription 句柄接收事件并在结束时 Close。
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"om-intel-chat/pkg/log"
)

// ChangeType 行变更类型
type ChangeType string

const (
	Insert ChangeType = "INSERT"
	Update ChangeType = "UPDATE"
	Delete ChangeType = "DELETE"
)

// ChangeEvent 是一条行变更通知。
type ChangeEvent struct {
	Table  string          `json:"table"`
	Type   ChangeType      `json:"type"`
	Record json.RawMessage `json:"record"`
}

// Channel 返回某个所有者在某张表上的频道名。
func Channel(table, ownerID string) string {
	return fmt.Sprintf("rows:%s:%s", table, ownerID)
}

// Hub 负责发布和订阅变更。
type Hub struct {
	rdb *redis.Client
}

// NewHub 创建 Hub。
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{rdb: rdb}
}

// Publish 将 record 序列化后发布到所有者的频道。
func (h *Hub) Publish(ctx context.Context, ownerID, table string, typ ChangeType, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal change record: %w", err)
	}
	payload, err := json.Marshal(ChangeEvent{Table: table, Type: typ, Record: raw})
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := h.rdb.Publish(ctx, Channel(table, ownerID), payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe 订阅所有者在某张表上的变更。返回前会等待订阅确认，
// 因此之后发布的事件都能被收到。
func (h *Hub) Subscribe(ctx context.Context, table, ownerID string) (*Subscription, error) {
	ps := h.rdb.Subscribe(ctx, Channel(table, ownerID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(table, ownerID), err)
	}

	sub := &Subscription{
		ps:     ps,
		events: make(chan ChangeEvent, 16),
		done:   make(chan struct{}),
	}
	go sub.loop()
	return sub, nil
}

// Subscription 是一个订阅句柄，必须调用 Close 释放。
type Subscription struct {
	ps     *redis.PubSub
	events chan ChangeEvent
	done   chan struct{}
	once   sync.Once
}

// Events 返回事件通道，订阅关闭后通道会被关闭。
func (s *Subscription) Events() <-chan ChangeEvent {
	return s.events
}

// Close 取消订阅，可重复调用。
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *Subscription) loop() {
	defer close(s.events)
	ch := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warnf("[Realtime] 丢弃无法解析的变更事件: channel=%s, err=%v", msg.Channel, err)
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}
