// Package response 统一 HTTP 响应封装。
//
// 历史原因存在两种信封格式，均需保留：
//   - success 信封：{success, data, message, code} —— 订阅/计费等新接口使用；
//   - requestStatus 信封：{requestStatus: {requestId, error, errorMessage}, ...payload}
//     —— 文件上传、任务、会话等旧接口使用，payload 字段与信封平铺在同一层。
//
// 客户端 SDK 在传输层统一归一化这两种格式。
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	infraerrors "github.com/Wei-Shaw/muse2api/internal/pkg/errors"
)

// Success 输出 success 信封的成功响应。
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"code":    0,
	})
}

// Error 输出 success 信封的错误响应。
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
		"code":    status,
	})
}

// ErrorFrom 根据 error 类型推断状态码后输出错误响应。
func ErrorFrom(c *gin.Context, err error) {
	status, body := infraerrors.ToHTTP(err)
	c.JSON(status, gin.H{
		"success": false,
		"message": body.Message,
		"code":    body.Code,
	})
}

// RequestStatus requestStatus 信封的状态块。
type RequestStatus struct {
	RequestID    string `json:"requestId,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// RSSuccess 输出 requestStatus 信封的成功响应，payload 字段与信封平铺。
func RSSuccess(c *gin.Context, payload gin.H) {
	body := gin.H{
		"requestStatus": RequestStatus{RequestID: uuid.NewString()},
	}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// RSError 输出 requestStatus 信封的错误响应。
// 注意：旧接口约定 HTTP 200 不代表业务成功，调用方必须检查 requestStatus.error。
func RSError(c *gin.Context, httpStatus int, errCode, message string) {
	c.JSON(httpStatus, gin.H{
		"requestStatus": RequestStatus{
			RequestID:    uuid.NewString(),
			Error:        errCode,
			ErrorMessage: message,
		},
	})
}
