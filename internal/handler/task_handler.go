package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Wei-Shaw/muse2api/internal/pkg/response"
	"github.com/Wei-Shaw/muse2api/internal/service"
)

const (
	defaultTaskPageSize = 20
	maxTaskPageSize     = 100
)

// TaskHandler 处理配乐生成任务接口，统一使用 requestStatus 信封。
type TaskHandler struct {
	taskService *service.TaskService
}

// NewTaskHandler 创建任务 Handler。
func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// Generate 提交生成任务 — 创建 pending 记录后立即返回，模拟引擎异步推进。
// POST /api/v1/music/generate
func (h *TaskHandler) Generate(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	var input service.CreateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.RSError(c, http.StatusBadRequest, "INVALID_REQUEST", "参数错误: "+err.Error())
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), userID, input)
	var insufficient *service.CreditInsufficientError
	switch {
	case errors.As(err, &insufficient):
		response.RSError(c, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", insufficient.Error())
		return
	case errors.Is(err, service.ErrUploadNotValidated):
		response.RSError(c, http.StatusBadRequest, "INVALID_FILE_KEY", "上传凭证无效或已过期，请重新上传")
		return
	case errors.Is(err, service.ErrTooManyActiveTasks):
		response.RSError(c, http.StatusTooManyRequests, "TOO_MANY_ACTIVE_TASKS", "进行中的任务过多，请等待现有任务完成")
		return
	case err != nil:
		response.RSError(c, http.StatusInternalServerError, "GENERATE_FAILED", "创建任务失败")
		return
	}
	response.RSSuccess(c, gin.H{"task": task})
}

// ListTasks 分页查询任务，最新在前。
// GET /api/v1/music/tasks?status=&page=&pageSize=
func (h *TaskHandler) ListTasks(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(defaultTaskPageSize)))
	if pageSize < 1 || pageSize > maxTaskPageSize {
		pageSize = defaultTaskPageSize
	}

	tasks, total, err := h.taskService.List(c.Request.Context(), userID, c.Query("status"), pageSize, (page-1)*pageSize)
	if err != nil {
		response.RSError(c, http.StatusInternalServerError, "LIST_FAILED", "查询任务失败")
		return
	}
	response.RSSuccess(c, gin.H{
		"tasks":    tasks,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// GetTask 查询单个任务。
// GET /api/v1/music/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	task, err := h.taskService.Get(c.Request.Context(), userID, c.Param("id"))
	if h.writeTaskError(c, err) {
		return
	}
	response.RSSuccess(c, gin.H{"task": task})
}

// RetryTask 重试失败的任务。
// POST /api/v1/music/tasks/:id/retry
func (h *TaskHandler) RetryTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	task, err := h.taskService.Retry(c.Request.Context(), userID, c.Param("id"))
	var insufficient *service.CreditInsufficientError
	switch {
	case errors.As(err, &insufficient):
		response.RSError(c, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS", insufficient.Error())
		return
	case errors.Is(err, service.ErrTaskNotFailed):
		response.RSError(c, http.StatusConflict, "TASK_NOT_FAILED", "仅失败的任务可以重试")
		return
	}
	if h.writeTaskError(c, err) {
		return
	}
	response.RSSuccess(c, gin.H{"task": task})
}

// CancelTask 取消任务：停掉推进、退还冻结积分、从列表移除。
// DELETE /api/v1/music/tasks/:id
func (h *TaskHandler) CancelTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	err := h.taskService.Cancel(c.Request.Context(), userID, c.Param("id"))
	if h.writeTaskError(c, err) {
		return
	}
	response.RSSuccess(c, gin.H{})
}

// DownloadTask 302 跳转到结果音频。
// GET /api/v1/music/tasks/:id/download
func (h *TaskHandler) DownloadTask(c *gin.Context) {
	userID := currentUserID(c)
	if userID == 0 {
		response.RSError(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return
	}
	url, err := h.taskService.ResolveDownload(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, service.ErrTaskNotCompleted) {
		response.RSError(c, http.StatusConflict, "TASK_NOT_COMPLETED", "任务尚未完成")
		return
	}
	if h.writeTaskError(c, err) {
		return
	}
	c.Redirect(http.StatusFound, url)
}

// writeTaskError 写出通用任务错误，返回是否已写出。
func (h *TaskHandler) writeTaskError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, service.ErrTaskNotFound):
		response.RSError(c, http.StatusNotFound, "TASK_NOT_FOUND", "任务不存在")
	case errors.Is(err, service.ErrTaskForbidden):
		response.RSError(c, http.StatusForbidden, "FORBIDDEN", "无权访问该任务")
	default:
		response.RSError(c, http.StatusInternalServerError, "INTERNAL", "服务内部错误")
	}
	return true
}
