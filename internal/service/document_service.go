package service

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"om-intel-chat/internal/model"
	"om-intel-chat/internal/repository"
	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/realtime"
	"om-intel-chat/pkg/storage"
)

// previewChars 是预览返回的最大字符数。
const previewChars = 2000

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
}

// PreviewInfoDTO 封装了文件预览所需的信息。
type PreviewInfoDTO struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
	FileSize int64  `json:"fileSize"`
	Status   string `json:"status"`
}

// DocumentService 接口定义了文档管理相关的业务操作。所有操作只作用于调用者自己的文档。
type DocumentService interface {
	ListDocuments(ctx context.Context, ownerID string) ([]model.Document, error)
	GetDocument(ctx context.Context, ownerID, id string) (*model.Document, error)
	DeleteDocument(ctx context.Context, ownerID, id string) error
	GenerateDownloadURL(ctx context.Context, ownerID, id string) (*DownloadInfoDTO, error)
	GetPreview(ctx context.Context, ownerID, id string) (*PreviewInfoDTO, error)
}

type documentService struct {
	documents repository.DocumentRepository
	blobs     storage.BlobStore
	cache     *ContextCache
	publisher ChangePublisher
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(documents repository.DocumentRepository, blobs storage.BlobStore, cache *ContextCache, publisher ChangePublisher) DocumentService {
	return &documentService{
		documents: documents,
		blobs:     blobs,
		cache:     cache,
		publisher: publisher,
	}
}

// ListDocuments 获取用户自己上传的文档列表，不包含提取文本。
func (s *documentService) ListDocuments(ctx context.Context, ownerID string) ([]model.Document, error) {
	docs, err := s.documents.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, wrapError(ErrPersistence, err, "failed to list documents")
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs, nil
}

// GetDocument 获取单个文档，他人的文档视为不存在。
func (s *documentService) GetDocument(ctx context.Context, ownerID, id string) (*model.Document, error) {
	doc, err := s.documents.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, "document not found")
		}
		return nil, wrapError(ErrPersistence, err, "failed to load document")
	}
	if doc.OwnerID != ownerID {
		return nil, newError(ErrNotFound, "document not found")
	}
	return doc, nil
}

// DeleteDocument 删除文档记录及其对应的文件。
func (s *documentService) DeleteDocument(ctx context.Context, ownerID, id string) error {
	doc, err := s.GetDocument(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, doc.StorageKey); err != nil {
		// 文件删除失败不阻止删除记录
		log.Warnf("[DocumentService] 删除文件失败, key=%s, err=%v", doc.StorageKey, err)
	}
	if err := s.documents.Delete(ctx, doc.ID); err != nil {
		return wrapError(ErrPersistence, err, "failed to delete document")
	}
	s.cache.Invalidate(doc.ID)
	publishChange(ctx, s.publisher, doc.OwnerID, documentsTable, realtime.Delete, map[string]string{"id": doc.ID})
	log.Infof("[DocumentService] 文档已删除, id=%s, owner=%s", doc.ID, ownerID)
	return nil
}

// GenerateDownloadURL 生成文件的下载链接。
func (s *documentService) GenerateDownloadURL(ctx context.Context, ownerID, id string) (*DownloadInfoDTO, error) {
	doc, err := s.GetDocument(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	url, err := s.blobs.PublicURL(ctx, doc.StorageKey)
	if err != nil {
		return nil, wrapError(ErrUpstream, err, "failed to generate download url")
	}
	return &DownloadInfoDTO{
		FileName:    doc.Name,
		DownloadURL: url,
		FileSize:    doc.Size,
	}, nil
}

// GetPreview 返回提取文本的开头部分，文档尚未就绪时内容为空。
func (s *documentService) GetPreview(ctx context.Context, ownerID, id string) (*PreviewInfoDTO, error) {
	doc, err := s.GetDocument(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	preview := &PreviewInfoDTO{
		FileName: doc.Name,
		FileSize: doc.Size,
		Status:   string(doc.Status),
	}
	if doc.HasText() {
		preview.Content = truncateRunes(*doc.ExtractedText, previewChars)
	}
	return preview, nil
}
