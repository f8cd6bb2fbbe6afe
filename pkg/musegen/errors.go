package musegen

import "fmt"

// APIError 服务端返回的业务错误，两种响应信封统一归一化为该类型。
type APIError struct {
	HTTPStatus int    // 0 表示信封内错误未伴随非 2xx 状态码
	Code       string // 服务端错误码，如 INSUFFICIENT_CREDITS
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("musegen: api error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("musegen: api error (http %d): %s", e.HTTPStatus, e.Message)
}

// UploadURLError 上传流程第一步（签发槽位）失败。
type UploadURLError struct {
	Err error
}

func (e *UploadURLError) Error() string {
	return "musegen: 获取上传地址失败: " + e.Err.Error()
}

func (e *UploadURLError) Unwrap() error { return e.Err }

// TransferError 上传流程第二步（字节直传）失败。
type TransferError struct {
	Err error
}

func (e *TransferError) Error() string {
	return "musegen: 文件上传失败: " + e.Err.Error()
}

func (e *TransferError) Unwrap() error { return e.Err }

// SubmissionError 上传流程第三步（提交生成任务）失败。
// 服务端只在提交成功后才创建任务记录，收到该错误时不存在残留任务。
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "musegen: 提交生成任务失败: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error { return e.Err }
