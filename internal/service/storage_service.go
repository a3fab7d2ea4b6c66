package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"toeic_prep_backend/internal/config"
	"toeic_prep_backend/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageService 解析题目音频、图片素材的访问 URL。
// minio 模式下签发临时链接，local 模式下拼接静态文件地址。
type StorageService struct {
	client    *minio.Client
	bucket    string
	urlExpiry time.Duration
	localBase string
}

func NewStorageService(cfg config.StorageConfig) (*StorageService, error) {
	s := &StorageService{
		bucket:    cfg.MinioBucket,
		urlExpiry: cfg.URLExpiry,
		localBase: strings.TrimRight(cfg.LocalBaseURL, "/"),
	}

	if cfg.Type != "minio" {
		return s, nil
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	s.client = client
	return s, nil
}

// StimulusURL 为素材 key 生成可访问链接。素材缺失不阻断发卷，
// 解析失败时返回空串并记日志，前端按无素材降级展示。
func (s *StorageService) StimulusURL(ctx context.Context, key string) string {
	if key == "" {
		return ""
	}

	if s.client == nil {
		if s.localBase == "" {
			return ""
		}
		return s.localBase + "/" + strings.TrimLeft(key, "/")
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlExpiry, nil)
	if err != nil {
		logger.Log.Warn("presign stimulus url failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return u.String()
}
