// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"om-intel-chat/internal/model"
)

// DocumentRepository 接口定义了文档相关的数据持久化操作。
// 状态只通过 MarkProcessing / MarkReady / MarkFailed 改变，文本和错误信息与状态一起写入。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id string) (*model.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkReady(ctx context.Context, id, text string, pageCount int) error
	MarkFailed(ctx context.Context, id, message string) error
	UpdateSnapshot(ctx context.Context, id string, snapshot datatypes.JSON) error
	Delete(ctx context.Context, id string) error
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 插入一条新的文档记录。
func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// FindByID 根据 ID 查询文档，不存在时返回 gorm.ErrRecordNotFound。
func (r *documentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByOwner 查询用户的所有文档，按创建时间倒序，不加载提取文本。
func (r *documentRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).
		Omit("extracted_text").
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Find(&docs).Error
	return docs, err
}

func (r *documentRepository) updateStatus(ctx context.Context, id string, values map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(values).Error
}

// MarkProcessing 将文档置为 processing，并清空上一次提取的结果。
func (r *documentRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":         model.DocumentProcessing,
		"extracted_text": nil,
		"error_message":  nil,
	})
}

// MarkReady 写入提取文本并将文档置为 ready。
func (r *documentRepository) MarkReady(ctx context.Context, id, text string, pageCount int) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":         model.DocumentReady,
		"extracted_text": text,
		"error_message":  nil,
		"page_count":     pageCount,
	})
}

// MarkFailed 记录错误信息并将文档置为 error，不保留任何部分文本。
func (r *documentRepository) MarkFailed(ctx context.Context, id, message string) error {
	return r.updateStatus(ctx, id, map[string]interface{}{
		"status":         model.DocumentError,
		"extracted_text": nil,
		"error_message":  message,
	})
}

// UpdateSnapshot 保存结构化摘要。
func (r *documentRepository) UpdateSnapshot(ctx context.Context, id string, snapshot datatypes.JSON) error {
	return r.updateStatus(ctx, id, map[string]interface{}{"snapshot": snapshot})
}

// Delete 删除文档记录。
func (r *documentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error
}
