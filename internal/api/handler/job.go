package handler

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/grade_go_server/config"
	"github.com/qs3c/grade_go_server/internal/model/dto"
	"github.com/qs3c/grade_go_server/internal/pkg/response"
	"github.com/qs3c/grade_go_server/internal/service"
)

type JobHandler struct {
	jobService   *service.JobService
	retryService *service.RetryService
	cfg          *config.Config
}

func NewJobHandler(jobService *service.JobService, retryService *service.RetryService, cfg *config.Config) *JobHandler {
	return &JobHandler{
		jobService:   jobService,
		retryService: retryService,
		cfg:          cfg,
	}
}

// Create 创建批改任务
// POST /api/v1/jobs
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	job, err := h.jobService.Create(&req)
	if err != nil {
		if errors.Is(err, service.ErrProviderNotSupported) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, job)
}

// Get 查询任务
// GET /api/v1/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	job, err := h.jobService.Get(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, job)
}

// Upload 上传一份提交文件
// POST /api/v1/jobs/:id/submissions
func (h *JobHandler) Upload(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.ParamError(c, "缺少上传文件")
		return
	}
	if h.cfg.Upload.MaxSize > 0 && file.Size > h.cfg.Upload.MaxSize {
		response.ParamError(c, "文件超过大小限制")
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Filename), "."))
	if !h.extensionAllowed(ext) {
		response.ParamError(c, "不支持的文件类型: "+ext)
		return
	}

	uploadID := uuid.NewString()
	dstPath := filepath.Join(h.cfg.Upload.TempDir, uploadID+"."+ext)
	if err := c.SaveUploadedFile(file, dstPath); err != nil {
		response.ServerError(c, "")
		return
	}

	sub, err := h.jobService.AddSubmission(id, file.Filename, dstPath, ext, uploadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, sub)
}

// Enqueue 将任务投入处理队列
// POST /api/v1/jobs/:id/enqueue
func (h *JobHandler) Enqueue(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.jobService.Enqueue(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{"enqueued": true})
}

// Progress 查询任务进度
// GET /api/v1/jobs/:id/progress
func (h *JobHandler) Progress(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	progress, err := h.jobService.GetProgress(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, progress)
}

// RetryFailed 重试任务内全部失败提交
// POST /api/v1/jobs/:id/retry-failed
func (h *JobHandler) RetryFailed(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	count, err := h.retryService.RetryFailedSubmissions(c.Request.Context(), id)
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

func (h *JobHandler) extensionAllowed(ext string) bool {
	if len(h.cfg.Upload.AllowedExtensions) == 0 {
		return true
	}
	for _, allowed := range h.cfg.Upload.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(allowed, "."), ext) {
			return true
		}
	}
	return false
}

// parseID 解析路径中的 :id
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "无效的 ID")
		return 0, false
	}
	return id, true
}
