package model

import "time"

// MessageRole 消息角色
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageStatus 消息状态。助手消息在流式生成期间为 streaming。
type MessageStatus string

const (
	MessageComplete  MessageStatus = "complete"
	MessageStreaming MessageStatus = "streaming"
	MessageError     MessageStatus = "error"
)

// Thread 是一组对话消息，DocumentID 决定每轮对话注入哪个文档的内容。
type Thread struct {
	ID         string    `gorm:"type:char(36);primaryKey" json:"id"`
	OwnerID    string    `gorm:"type:varchar(64);index;not null" json:"ownerId"`
	DocumentID *string   `gorm:"type:char(36);index" json:"documentId,omitempty"`
	Title      string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Thread) TableName() string {
	return "chat_threads"
}

// Message 代表一条对话消息，归属于 Thread。
type Message struct {
	ID        string        `gorm:"type:char(36);primaryKey" json:"id"`
	ThreadID  string        `gorm:"type:char(36);index:idx_thread_created,priority:1;not null" json:"threadId"`
	Role      MessageRole   `gorm:"type:varchar(16);not null" json:"role"`
	Content   string        `gorm:"type:longtext;not null" json:"content"`
	Status    MessageStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt time.Time     `gorm:"index:idx_thread_created,priority:2" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Message) TableName() string {
	return "chat_messages"
}
