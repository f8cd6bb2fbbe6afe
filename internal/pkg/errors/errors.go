package errors

import (
	"errors"
	"fmt"
)

// Status 是错误在 HTTP 响应中的序列化形态。
type Status struct {
	Code     int32             `json:"code"`
	Reason   string            `json:"reason,omitempty"`
	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AppError 携带 HTTP 状态码与机器可读 reason 的业务错误。
type AppError struct {
	Code     int32
	Reason   string
	Message  string
	Metadata map[string]string
	cause    error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("error: code = %d reason = %s message = %s", e.Code, e.Reason, e.Message)
}

func (e *AppError) Unwrap() error { return e.cause }

// WithCause 附加底层错误，保留错误链。
func (e *AppError) WithCause(cause error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.cause = cause
	return &clone
}

// New 创建 AppError。
func New(code int, reason, message string) *AppError {
	return &AppError{Code: int32(code), Reason: reason, Message: message}
}

// Newf 创建带格式化 message 的 AppError。
func Newf(code int, reason, format string, args ...any) *AppError {
	return New(code, reason, fmt.Sprintf(format, args...))
}

// ToHTTP 将 error 转换为 HTTP 状态码与响应体。
func ToHTTP(err error) (int, Status) {
	appErr := FromError(err)
	if appErr == nil {
		return 200, Status{Code: 200}
	}
	body := Status{
		Code:    appErr.Code,
		Reason:  appErr.Reason,
		Message: appErr.Message,
	}
	if len(appErr.Metadata) > 0 {
		body.Metadata = make(map[string]string, len(appErr.Metadata))
		for k, v := range appErr.Metadata {
			body.Metadata[k] = v
		}
	}
	return int(appErr.Code), body
}

// FromError 尽可能将任意 error 还原为 AppError；无法识别时归为 500。
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{
		Code:    500,
		Reason:  "INTERNAL",
		Message: err.Error(),
	}
}
