package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qs3c/grade_go_server/internal/pkg/response"
	"github.com/qs3c/grade_go_server/internal/repository"
	"github.com/qs3c/grade_go_server/internal/service"
)

type SubmissionHandler struct {
	subRepo      *repository.SubmissionRepository
	retryService *service.RetryService
}

func NewSubmissionHandler(subRepo *repository.SubmissionRepository, retryService *service.RetryService) *SubmissionHandler {
	return &SubmissionHandler{
		subRepo:      subRepo,
		retryService: retryService,
	}
}

// Get 查询提交及其全部批改结果
// GET /api/v1/submissions/:id
func (h *SubmissionHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	sub, err := h.subRepo.GetByIDWithResults(id)
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

// Retry 重试一份失败的提交
// POST /api/v1/submissions/:id/retry
func (h *SubmissionHandler) Retry(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	retried, err := h.retryService.RetrySubmission(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{"retried": retried})
}
