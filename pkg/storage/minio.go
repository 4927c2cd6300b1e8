// Package storage 提供了与对象存储服务（MinIO / S3 兼容）交互的功能。
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"om-intel-chat/internal/config"
	"om-intel-chat/pkg/log"
)

// BlobStore 是上传 PDF 的持久化存储，按生成的 key 寻址。
type BlobStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	PublicURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// MinioStore 是 BlobStore 的 MinIO 实现。
type MinioStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	urlExpiry     time.Duration
}

// NewMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}

	expiry := time.Duration(cfg.URLExpiryHours) * time.Hour
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &MinioStore{
		client:        client,
		bucket:        cfg.BucketName,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		urlExpiry:     expiry,
	}, nil
}

// Upload 上传对象。
func (s *MinioStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", key, err)
	}
	return nil
}

// Download 将对象完整读入内存。
func (s *MinioStore) Download(ctx context.Context, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	return data, nil
}

// PublicURL 返回对象的访问地址。
func (s *MinioStore) PublicURL(ctx context.Context, key string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + s.bucket + "/" + key, nil
	}
	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("生成预签名链接失败: %w", err)
	}
	return presignedURL.String(), nil
}

// Delete 删除对象，对象不存在时不报错。
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", key, err)
	}
	return nil
}
