// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentStatus 是文档的处理状态。
type DocumentStatus string

const (
	DocumentUploading  DocumentStatus = "uploading"
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentError      DocumentStatus = "error"
)

// Document 定义了 documents 表的 ORM 模型。
// ExtractedText 仅在 Status 为 ready 时非空，Status 为 error 时 ErrorMessage 非空。
type Document struct {
	ID            string         `gorm:"type:char(36);primaryKey" json:"id"`
	OwnerID       string         `gorm:"type:varchar(64);index;not null" json:"ownerId"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	Size          int64          `gorm:"not null" json:"size"`
	MimeType      string         `gorm:"type:varchar(100);not null" json:"mimeType"`
	StorageKey    string         `gorm:"type:varchar(255);not null" json:"storageKey"`
	StorageURL    string         `gorm:"type:text" json:"storageUrl"`
	Status        DocumentStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	ExtractedText *string        `gorm:"type:longtext" json:"extractedText,omitempty"`
	ErrorMessage  *string        `gorm:"type:text" json:"errorMessage,omitempty"`
	PageCount     int            `gorm:"not null;default:0" json:"pageCount"`
	Snapshot      datatypes.JSON `json:"snapshot,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// HasText 判断文档是否已有可用的提取文本。
func (d *Document) HasText() bool {
	return d.Status == DocumentReady && d.ExtractedText != nil && *d.ExtractedText != ""
}
