package musegen

import (
	"context"
	"fmt"
)

// 上传流水线阶段，进度回调用。
const (
	StageUploadURL = "upload_url" // 签发直传槽位
	StageTransfer  = "transfer"   // 字节直传对象存储
	StageSubmit    = "submit"     // 提交生成任务
)

// UploadInput 三段式上传提交的入参。
type UploadInput struct {
	VideoDescription string // 必填
	FileName         string // 必填，扩展名决定是否受理
	ContentType      string
	Data             []byte // 视频文件内容

	// OnStage 每个阶段开始前回调一次，可为 nil。
	OnStage func(stage string)
}

// IssueUploadSlot 向服务端申请直传槽位。
func (c *Client) IssueUploadSlot(ctx context.Context, fileName, contentType string, fileSize int64) (*UploadSlot, error) {
	resp, err := c.request(ctx).
		SetBodyJsonMarshal(map[string]any{
			"fileName":    fileName,
			"contentType": contentType,
			"fileSize":    fileSize,
			"fileType":    "video",
		}).
		Post("/api/v1/files/upload-url")
	if err != nil {
		return nil, fmt.Errorf("musegen: 申请上传槽位失败: %w", err)
	}
	var slot UploadSlot
	if err := decode(resp, &slot); err != nil {
		return nil, err
	}
	return &slot, nil
}

// UploadAndSubmit 执行完整的上传提交流水线：
// 签发槽位 → 直传字节 → 提交生成任务。三步全成或全败，不做自动重试；
// 任何一步失败都以对应阶段的类型化错误返回，且服务端不会留下任务记录
// （任务只在第三步成功时创建）。中途失败后重新调用即从第一步重来。
func (c *Client) UploadAndSubmit(ctx context.Context, input UploadInput) (*Task, error) {
	stage := func(s string) {
		if input.OnStage != nil {
			input.OnStage(s)
		}
	}

	stage(StageUploadURL)
	slot, err := c.IssueUploadSlot(ctx, input.FileName, input.ContentType, int64(len(input.Data)))
	if err != nil {
		return nil, &UploadURLError{Err: err}
	}

	stage(StageTransfer)
	if err := c.transfer(ctx, slot, input); err != nil {
		return nil, &TransferError{Err: err}
	}

	stage(StageSubmit)
	task, err := c.Generate(ctx, GenerateInput{
		VideoDescription: input.VideoDescription,
		VideoFileName:    input.FileName,
		VideoFileSize:    int64(len(input.Data)),
		VideoFileKey:     slot.FileKey,
	})
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}
	return task, nil
}

// transfer PUT 原始字节到槽位地址。槽位可能是带签名的对象存储绝对地址，
// 也可能是服务端兜底的相对地址，均不附带用户令牌。
func (c *Client) transfer(ctx context.Context, slot *UploadSlot, input UploadInput) error {
	r := c.http.R().SetContext(ctx).SetBodyBytes(input.Data)
	if input.ContentType != "" {
		r.SetContentType(input.ContentType)
	}
	resp, err := r.Put(slot.UploadURL)
	if err != nil {
		return fmt.Errorf("直传请求失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("直传被拒绝: status %d, body: %s", resp.StatusCode, resp.String())
	}
	return nil
}
