package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/grade_go_server/config"
	"github.com/qs3c/grade_go_server/internal/model"
	"github.com/qs3c/grade_go_server/internal/model/dto"
	"github.com/qs3c/grade_go_server/internal/pkg/queue"
	"github.com/qs3c/grade_go_server/internal/pkg/response"
	"github.com/qs3c/grade_go_server/internal/repository"
	"github.com/qs3c/grade_go_server/internal/service"
	"github.com/qs3c/grade_go_server/internal/testutil"
)

// testContext 本地测试上下文
type testContext struct {
	DB *gorm.DB
}

func setupBatchHandler(t *testing.T) (*BatchHandler, *testContext, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	batchRepo := repository.NewBatchRepository(db)
	jobRepo := repository.NewJobRepository(db)
	subRepo := repository.NewSubmissionRepository(db)
	q := queue.NewQueue(rdb, "test_grading_queue")

	cfg := &config.Config{
		Queue: config.QueueConfig{GradingQueue: "test_grading_queue", StaggerSeconds: 5},
	}

	batchService := service.NewBatchService(batchRepo, jobRepo, subRepo, q, cfg)
	handler := NewBatchHandler(batchService)

	ctx := &testContext{
		DB: db,
	}

	cleanup := func() {
		rdb.Close()
		testutil.CleanupTestDB(t, db)
	}

	return handler, ctx, cleanup
}

func performRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func TestBatchHandler_Create_Success(t *testing.T) {
	handler, _, cleanup := setupBatchHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/batches", handler.Create)

	w := performRequest(router, "POST", "/batches", dto.CreateBatchRequest{
		Name:     "期末作文批改",
		Provider: "openai",
	})

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "期末作文批改", data["name"])
	assert.Equal(t, model.StatusPending, data["status"])
	assert.NotZero(t, data["id"])
}

func TestBatchHandler_Create_MissingName(t *testing.T) {
	handler, _, cleanup := setupBatchHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/batches", handler.Create)

	w := performRequest(router, "POST", "/batches", dto.CreateBatchRequest{
		Provider: "openai",
	})

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestBatchHandler_Get_NotFound(t *testing.T) {
	handler, _, cleanup := setupBatchHandler(t)
	defer cleanup()

	router := gin.New()
	router.GET("/batches/:id", handler.Get)

	w := performRequest(router, "GET", "/batches/99999", nil)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestBatchHandler_Get_InvalidID(t *testing.T) {
	handler, _, cleanup := setupBatchHandler(t)
	defer cleanup()

	router := gin.New()
	router.GET("/batches/:id", handler.Get)

	w := performRequest(router, "GET", "/batches/invalid", nil)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestBatchHandler_Start_Success(t *testing.T) {
	handler, ctx, cleanup := setupBatchHandler(t)
	defer cleanup()

	batch := testutil.TestBatch(t, ctx.DB)
	testutil.TestJob(t, ctx.DB, testutil.WithJobBatch(batch.ID))

	router := gin.New()
	router.POST("/batches/:id/start", handler.Start)

	w := performRequest(router, "POST", fmt.Sprintf("/batches/%d/start", batch.ID), nil)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)
}

func TestBatchHandler_Start_EmptyBatch(t *testing.T) {
	handler, ctx, cleanup := setupBatchHandler(t)
	defer cleanup()

	batch := testutil.TestBatch(t, ctx.DB)

	router := gin.New()
	router.POST("/batches/:id/start", handler.Start)

	w := performRequest(router, "POST", fmt.Sprintf("/batches/%d/start", batch.ID), nil)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeInvalidState, resp.Code)
}

func TestBatchHandler_Start_InvalidState(t *testing.T) {
	handler, ctx, cleanup := setupBatchHandler(t)
	defer cleanup()

	batch := testutil.TestBatch(t, ctx.DB, testutil.WithBatchStatus(model.StatusProcessing))

	router := gin.New()
	router.POST("/batches/:id/start", handler.Start)

	w := performRequest(router, "POST", fmt.Sprintf("/batches/%d/start", batch.ID), nil)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeInvalidState, resp.Code)
}

func TestBatchHandler_Pause_InvalidState(t *testing.T) {
	handler, ctx, cleanup := setupBatchHandler(t)
	defer cleanup()

	batch := testutil.TestBatch(t, ctx.DB)

	router := gin.New()
	router.POST("/batches/:id/pause", handler.Pause)

	w := performRequest(router, "POST", fmt.Sprintf("/batches/%d/pause", batch.ID), nil)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeInvalidState, resp.Code)
}

func TestBatchHandler_Cancel_Success(t *testing.T) {
	handler, ctx, cleanup := setupBatchHandler(t)
	defer cleanup()

	batch := testutil.TestBatch(t, ctx.DB, testutil.WithBatchStatus(model.StatusProcessing))

	router := gin.New()
	router.POST("/batches/:id/cancel", handler.Cancel)

	w := performRequest(router, "POST", fmt.Sprintf("/batches/%d/cancel", batch.ID), nil)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)
}

func TestBatchHandler_RetryFailed(t *testing.T) {
	handler, ctx, cleanup := setupBatchHandler(t)
	defer cleanup()

	batch := testutil.TestBatch(t, ctx.DB, testutil.WithBatchStatus(model.StatusFailed))
	testutil.TestJob(t, ctx.DB, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusFailed))

	router := gin.New()
	router.POST("/batches/:id/retry-failed", handler.RetryFailed)

	w := performRequest(router, "POST", fmt.Sprintf("/batches/%d/retry-failed", batch.ID), nil)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["retried"])
}

func TestBatchHandler_Progress(t *testing.T) {
	handler, ctx, cleanup := setupBatchHandler(t)
	defer cleanup()

	batch := testutil.TestBatch(t, ctx.DB, testutil.WithBatchStatus(model.StatusProcessing))
	testutil.TestJob(t, ctx.DB, testutil.WithJobBatch(batch.ID), testutil.WithJobStatus(model.StatusCompleted))
	testutil.TestJob(t, ctx.DB, testutil.WithJobBatch(batch.ID))

	router := gin.New()
	router.GET("/batches/:id/progress", handler.Progress)

	w := performRequest(router, "GET", fmt.Sprintf("/batches/%d/progress", batch.ID), nil)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(50), data["percentage"])
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, float64(1), data["processed"])
}

func TestBatchHandler_AssignJob(t *testing.T) {
	handler, ctx, cleanup := setupBatchHandler(t)
	defer cleanup()

	batch := testutil.TestBatch(t, ctx.DB)
	job := testutil.TestJob(t, ctx.DB)

	router := gin.New()
	router.PUT("/batches/:id/jobs/:jobID", handler.AssignJob)
	router.DELETE("/batches/:id/jobs/:jobID", handler.RemoveJob)

	w := performRequest(router, "PUT", fmt.Sprintf("/batches/%d/jobs/%d", batch.ID, job.ID), nil)
	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	w = performRequest(router, "DELETE", fmt.Sprintf("/batches/%d/jobs/%d", batch.ID, job.ID), nil)
	resp = parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)
}

func TestBatchHandler_AssignJob_BatchStarted(t *testing.T) {
	handler, ctx, cleanup := setupBatchHandler(t)
	defer cleanup()

	batch := testutil.TestBatch(t, ctx.DB, testutil.WithBatchStatus(model.StatusProcessing))
	job := testutil.TestJob(t, ctx.DB)

	router := gin.New()
	router.PUT("/batches/:id/jobs/:jobID", handler.AssignJob)

	w := performRequest(router, "PUT", fmt.Sprintf("/batches/%d/jobs/%d", batch.ID, job.ID), nil)
	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeInvalidState, resp.Code)
}
