package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/Wei-Shaw/muse2api/internal/config"
	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
)

// MediaStorage 负责视频源文件与生成结果音频的 S3 存储操作：
// 为客户端签发直传 PUT 的预签名 URL，为下载生成访问 URL。
type MediaStorage struct {
	cfg config.StorageConfig

	mu     sync.RWMutex
	client *s3.Client

	healthCheckedAt time.Time
	healthErr       error
	healthTTL       time.Duration
}

const defaultStorageHealthTTL = 30 * time.Second

// NewMediaStorage 创建存储服务实例。
func NewMediaStorage(cfg config.StorageConfig) *MediaStorage {
	return &MediaStorage{cfg: cfg, healthTTL: defaultStorageHealthTTL}
}

// Configured 返回 S3 存储是否配置完整。未配置时上传走 mock 槽位，
// 下载回退任务自带的固定 URL。
func (s *MediaStorage) Configured() bool {
	if s == nil {
		return false
	}
	return s.cfg.Bucket != "" && s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != ""
}

// getClient 获取或初始化 S3 客户端（带缓存）。
func (s *MediaStorage) getClient(ctx context.Context) (*s3.Client, error) {
	s.mu.RLock()
	if s.client != nil {
		client := s.client
		s.mu.RUnlock()
		return client, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// 双重检查
	if s.client != nil {
		return s.client, nil
	}
	if !s.Configured() {
		return nil, fmt.Errorf("media storage config incomplete: bucket, access_key_id, secret_access_key are required")
	}

	client, region, err := buildMediaS3Client(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	s.client = client
	logger.LegacyPrintf("service.storage", "[Storage] 客户端已初始化 bucket=%s endpoint=%s region=%s", s.cfg.Bucket, s.cfg.Endpoint, region)
	return client, nil
}

func buildMediaS3Client(ctx context.Context, cfg config.StorageConfig) (*s3.Client, string, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			o.BaseEndpoint = &endpoint
			// 自定义 endpoint（MinIO 等）统一走 path-style
			o.UsePathStyle = true
		}
		o.APIOptions = append(o.APIOptions, v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return client, region, nil
}

// TestConnection 测试 S3 连接（HeadBucket）。
func (s *MediaStorage) TestConnection(ctx context.Context) error {
	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.cfg.Bucket})
	if err != nil {
		return fmt.Errorf("s3 HeadBucket failed: %w", err)
	}
	return nil
}

// IsHealthy 返回 S3 健康状态（带短缓存，避免每次请求都触发 HeadBucket）。
func (s *MediaStorage) IsHealthy(ctx context.Context) bool {
	if s == nil || !s.Configured() {
		return false
	}
	now := time.Now()
	s.mu.RLock()
	lastCheck := s.healthCheckedAt
	lastErr := s.healthErr
	ttl := s.healthTTL
	s.mu.RUnlock()

	if ttl <= 0 {
		ttl = defaultStorageHealthTTL
	}
	if !lastCheck.IsZero() && now.Sub(lastCheck) < ttl {
		return lastErr == nil
	}

	err := s.TestConnection(ctx)
	s.mu.Lock()
	s.healthCheckedAt = time.Now()
	s.healthErr = err
	s.mu.Unlock()
	return err == nil
}

// GenerateUploadKey 生成视频源文件的 object key。
// 格式: uploads/{userID}/{YYYY/MM/DD}/{uuid}.{ext}
func (s *MediaStorage) GenerateUploadKey(userID int64, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if ext == "" {
		ext = ".bin"
	}
	datePath := time.Now().Format("2006/01/02")
	return fmt.Sprintf("uploads/%d/%s/%s%s", userID, datePath, uuid.NewString(), ext)
}

// GenerateResultKey 生成结果音频的 object key。
// 格式: results/{userID}/{YYYY/MM/DD}/music-{taskID}.mp3
func (s *MediaStorage) GenerateResultKey(userID int64, taskID string) string {
	datePath := time.Now().Format("2006/01/02")
	return fmt.Sprintf("results/%d/%s/music-%s.mp3", userID, datePath, taskID)
}

// PresignUpload 为客户端直传签发 PUT 预签名 URL。
func (s *MediaStorage) PresignUpload(ctx context.Context, objectKey, contentType string, ttl time.Duration) (string, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return "", err
	}
	input := &s3.PutObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &objectKey,
	}
	if contentType != "" {
		input.ContentType = &contentType
	}
	presignClient := s3.NewPresignClient(client)
	result, err := presignClient.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign upload url: %w", err)
	}
	return result.URL, nil
}

// GetAccessURL 获取文件的访问 URL。CDN 域名优先，否则生成预签名 URL。
func (s *MediaStorage) GetAccessURL(ctx context.Context, objectKey string) (string, error) {
	if s.cfg.CDNDomain != "" {
		cdnBase := strings.TrimRight(s.cfg.CDNDomain, "/")
		return cdnBase + "/" + objectKey, nil
	}
	return s.GeneratePresignedURL(ctx, objectKey, s.cfg.PresignExpiry)
}

// GeneratePresignedURL 生成 GET 预签名 URL。
func (s *MediaStorage) GeneratePresignedURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return "", err
	}
	presignClient := s3.NewPresignClient(client)
	result, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &objectKey,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign url: %w", err)
	}
	return result.URL, nil
}

// DeleteObjects 删除一组 object（遍历逐一删除）。
func (s *MediaStorage) DeleteObjects(ctx context.Context, objectKeys []string) error {
	if len(objectKeys) == 0 {
		return nil
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}
	var lastErr error
	for _, key := range objectKeys {
		k := key
		_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: &s.cfg.Bucket,
			Key:    &k,
		})
		if err != nil {
			logger.LegacyPrintf("service.storage", "[Storage] 删除失败 key=%s err=%v", key, err)
			lastErr = err
		}
	}
	return lastErr
}
