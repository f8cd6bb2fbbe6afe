package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Wei-Shaw/muse2api/internal/config"
	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
)

// ErrUnsupportedFileType 表示上传的文件类型不被支持。
var ErrUnsupportedFileType = errors.New("unsupported file type")

// FileTooLargeError 表示文件超出大小上限。
type FileTooLargeError struct {
	SizeBytes  int64
	LimitBytes int64
}

func (e *FileTooLargeError) Error() string {
	if e == nil {
		return "文件过大"
	}
	return fmt.Sprintf("文件过大（%d 字节，上限 %d 字节）", e.SizeBytes, e.LimitBytes)
}

// 允许上传的视频扩展名。
var allowedVideoExts = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".webm": {}, ".m4v": {}, ".avi": {}, ".mkv": {},
}

// IssueUploadInput 申请上传槽位的入参。
type IssueUploadInput struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
	FileType    string `json:"fileType"` // video / image，目前仅 video
}

// UploadSlot 签发给客户端的上传槽位：直传 URL + 提交任务时使用的 fileKey。
type UploadSlot struct {
	UploadURL string    `json:"uploadUrl"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UploadService 签发上传槽位并在任务提交时校验 fileKey。
// 已签发的槽位记在带 TTL 的本地缓存里，过期后提交会被拒绝。
type UploadService struct {
	storage *MediaStorage
	cfg     config.StorageConfig
	issued  *gocache.Cache
}

// NewUploadService 创建上传服务。
func NewUploadService(storage *MediaStorage, cfg config.StorageConfig) *UploadService {
	return &UploadService{
		storage: storage,
		cfg:     cfg,
		issued:  gocache.New(cfg.UploadExpiry, 5*time.Minute),
	}
}

func slotCacheKey(userID int64, fileKey string) string {
	return fmt.Sprintf("%d:%s", userID, fileKey)
}

// IssueSlot 校验文件信息后签发上传槽位。
// 未配置对象存储时返回本服务的 mock 直传地址，语义不变。
func (s *UploadService) IssueSlot(ctx context.Context, userID int64, input IssueUploadInput) (*UploadSlot, error) {
	if input.FileType != "" && input.FileType != "video" {
		return nil, ErrUnsupportedFileType
	}
	if s.cfg.MaxUploadBytes > 0 && input.FileSize > s.cfg.MaxUploadBytes {
		return nil, &FileTooLargeError{SizeBytes: input.FileSize, LimitBytes: s.cfg.MaxUploadBytes}
	}
	ext := strings.ToLower(path.Ext(input.FileName))
	if _, ok := allowedVideoExts[ext]; !ok {
		return nil, ErrUnsupportedFileType
	}

	fileKey := s.storage.GenerateUploadKey(userID, ext)
	expiresAt := time.Now().Add(s.cfg.UploadExpiry)

	var uploadURL string
	if s.storage.Configured() {
		url, err := s.storage.PresignUpload(ctx, fileKey, input.ContentType, s.cfg.UploadExpiry)
		if err != nil {
			return nil, fmt.Errorf("presign upload: %w", err)
		}
		uploadURL = url
	} else {
		uploadURL = "/api/v1/files/mock-upload/" + fileKey
	}

	s.issued.Set(slotCacheKey(userID, fileKey), struct{}{}, s.cfg.UploadExpiry)
	logger.LegacyPrintf("service.upload", "[Upload] 签发槽位 user=%d key=%s size=%d", userID, fileKey, input.FileSize)
	return &UploadSlot{UploadURL: uploadURL, FileKey: fileKey, ExpiresAt: expiresAt}, nil
}

// ValidateFileKey 校验 fileKey 是本服务签发给该用户且未过期的槽位。
// 校验不消耗槽位，同一 fileKey 在有效期内可重复提交（重试场景）。
func (s *UploadService) ValidateFileKey(userID int64, fileKey string) bool {
	_, ok := s.issued.Get(slotCacheKey(userID, fileKey))
	return ok
}
