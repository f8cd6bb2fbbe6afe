package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wei-Shaw/muse2api/internal/pkg/response"
	"github.com/Wei-Shaw/muse2api/internal/service"
)

// FileHandler 处理上传槽位签发。
type FileHandler struct {
	uploadService *service.UploadService
}

// NewFileHandler 创建文件 Handler。
func NewFileHandler(uploadService *service.UploadService) *FileHandler {
	return &FileHandler{uploadService: uploadService}
}

// GetUploadURL 签发视频直传槽位。
// POST /api/v1/files/upload-url
func (h *FileHandler) GetUploadURL(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	var input service.IssueUploadInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.RSError(c, http.StatusBadRequest, "INVALID_REQUEST", "参数错误: "+err.Error())
		return
	}

	slot, err := h.uploadService.IssueSlot(c.Request.Context(), userID, input)
	var tooLarge *service.FileTooLargeError
	switch {
	case errors.As(err, &tooLarge):
		response.RSError(c, http.StatusBadRequest, "FILE_TOO_LARGE", tooLarge.Error())
		return
	case errors.Is(err, service.ErrUnsupportedFileType):
		response.RSError(c, http.StatusBadRequest, "UNSUPPORTED_TYPE", "不支持的文件类型")
		return
	case err != nil:
		response.RSError(c, http.StatusInternalServerError, "UPLOAD_URL_FAILED", "获取上传地址失败")
		return
	}

	response.RSSuccess(c, gin.H{
		"uploadUrl": slot.UploadURL,
		"fileKey":   slot.FileKey,
		"expiresAt": slot.ExpiresAt,
	})
}

// MockUpload 未配置对象存储时的兜底直传端点，接收并丢弃字节。
// PUT /api/v1/files/mock-upload/*fileKey
func (h *FileHandler) MockUpload(c *gin.Context) {
	_, _ = io.Copy(io.Discard, c.Request.Body)
	c.Status(http.StatusOK)
}
