package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// documentContext 是注入到聊天系统提示中的文档片段。
type documentContext struct {
	OwnerID string
	Name    string
	Text    string
}

// ContextCache 缓存已就绪文档的上下文片段，文档重新提取或删除时失效。
type ContextCache struct {
	lru *expirable.LRU[string, documentContext]
}

// NewContextCache 创建缓存，size 小于等于 0 时返回 nil（不缓存）。
func NewContextCache(size int, ttl time.Duration) *ContextCache {
	if size <= 0 {
		return nil
	}
	return &ContextCache{lru: expirable.NewLRU[string, documentContext](size, nil, ttl)}
}

func (c *ContextCache) get(documentID string) (documentContext, bool) {
	if c == nil {
		return documentContext{}, false
	}
	return c.lru.Get(documentID)
}

func (c *ContextCache) add(documentID string, v documentContext) {
	if c == nil {
		return
	}
	c.lru.Add(documentID, v)
}

// Invalidate 移除文档的缓存。
func (c *ContextCache) Invalidate(documentID string) {
	if c == nil {
		return
	}
	c.lru.Remove(documentID)
}
