package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/realtime"
	"om-intel-chat/pkg/token"
)

const (
	documentsTable = "documents"
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源，身份由路径中的 token 校验
	},
}

// ChangeSubscriber 创建行变更订阅。
type ChangeSubscriber interface {
	Subscribe(ctx context.Context, table, ownerID string) (*realtime.Subscription, error)
}

// RealtimeHandler 通过 WebSocket 推送调用者文档的状态变更。
type RealtimeHandler struct {
	subscriber ChangeSubscriber
	jwtManager *token.JWTManager
}

// NewRealtimeHandler 创建一个新的 RealtimeHandler。
func NewRealtimeHandler(subscriber ChangeSubscriber, jwtManager *token.JWTManager) *RealtimeHandler {
	return &RealtimeHandler{subscriber: subscriber, jwtManager: jwtManager}
}

// DocumentChanges 处理一个传入的 WebSocket 连接，直到客户端断开。
func (h *RealtimeHandler) DocumentChanges(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.subscriber.Subscribe(ctx, documentsTable, claims.UserID)
	if err != nil {
		log.Errorf("[RealtimeHandler] 订阅失败, user=%s, err=%v", claims.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[RealtimeHandler] WebSocket 连接已建立, user=%s", claims.UserID)

	// 读循环只用于感知客户端关闭
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infof("[RealtimeHandler] WebSocket 连接已关闭, user=%s", claims.UserID)
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Warnf("[RealtimeHandler] 推送变更失败, user=%s, err=%v", claims.UserID, err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
