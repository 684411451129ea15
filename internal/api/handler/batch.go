package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qs3c/grade_go_server/internal/model/dto"
	"github.com/qs3c/grade_go_server/internal/pkg/response"
	"github.com/qs3c/grade_go_server/internal/service"
)

type BatchHandler struct {
	batchService *service.BatchService
}

func NewBatchHandler(batchService *service.BatchService) *BatchHandler {
	return &BatchHandler{batchService: batchService}
}

// Create 创建批次
// POST /api/v1/batches
func (h *BatchHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	batch, err := h.batchService.Create(&req)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, batch)
}

// Get 查询批次
// GET /api/v1/batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	batch, err := h.batchService.Get(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, batch)
}

// Start 启动批次
// POST /api/v1/batches/:id/start
func (h *BatchHandler) Start(c *gin.Context) {
	h.transition(c, h.batchService.Start)
}

// Pause 暂停批次
// POST /api/v1/batches/:id/pause
func (h *BatchHandler) Pause(c *gin.Context) {
	h.transition(c, h.batchService.Pause)
}

// Resume 恢复批次
// POST /api/v1/batches/:id/resume
func (h *BatchHandler) Resume(c *gin.Context) {
	h.transition(c, h.batchService.Resume)
}

// Cancel 取消批次
// POST /api/v1/batches/:id/cancel
func (h *BatchHandler) Cancel(c *gin.Context) {
	h.transition(c, h.batchService.Cancel)
}

// Archive 归档批次
// POST /api/v1/batches/:id/archive
func (h *BatchHandler) Archive(c *gin.Context) {
	h.transition(c, h.batchService.Archive)
}

// RetryFailed 重试批次内全部失败任务
// POST /api/v1/batches/:id/retry-failed
func (h *BatchHandler) RetryFailed(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	count, err := h.batchService.RetryFailedJobs(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{"retried": count})
}

// Progress 查询批次进度
// GET /api/v1/batches/:id/progress
func (h *BatchHandler) Progress(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	percentage, err := h.batchService.GetProgress(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "")
			return
		}
		response.ServerError(c, "")
		return
	}

	batch, err := h.batchService.Get(id)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.ProgressResponse{
		Percentage: percentage,
		Status:     batch.Status,
		Total:      batch.TotalJobs,
		Processed:  batch.CompletedJobs + batch.FailedJobs,
		Failed:     batch.FailedJobs,
	})
}

// AssignJob 把任务划入批次
// PUT /api/v1/batches/:id/jobs/:jobID
func (h *BatchHandler) AssignJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	if err := h.batchService.AssignJob(c.Request.Context(), id, jobID); err != nil {
		h.transitionError(c, err)
		return
	}

	response.Success(c, nil)
}

// RemoveJob 把任务移出批次
// DELETE /api/v1/batches/:id/jobs/:jobID
func (h *BatchHandler) RemoveJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	jobID, ok := parseJobID(c)
	if !ok {
		return
	}

	if err := h.batchService.RemoveJob(c.Request.Context(), id, jobID); err != nil {
		h.transitionError(c, err)
		return
	}

	response.Success(c, nil)
}

// transition 状态流转类接口的公共骨架
func (h *BatchHandler) transition(c *gin.Context, fn func(ctx context.Context, id int64) error) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := fn(c.Request.Context(), id); err != nil {
		h.transitionError(c, err)
		return
	}

	response.Success(c, gin.H{"success": true})
}

func (h *BatchHandler) transitionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(c, "")
	case errors.Is(err, service.ErrBatchNotStartable),
		errors.Is(err, service.ErrBatchEmpty),
		errors.Is(err, service.ErrBatchNotPausable),
		errors.Is(err, service.ErrBatchNotResumable),
		errors.Is(err, service.ErrBatchNotCancellable),
		errors.Is(err, service.ErrBatchNotArchivable),
		errors.Is(err, service.ErrBatchNotEditable):
		response.InvalidState(c, err.Error())
	default:
		response.ServerError(c, "")
	}
}

func parseJobID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("jobID"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "无效的任务 ID")
		return 0, false
	}
	return id, true
}
