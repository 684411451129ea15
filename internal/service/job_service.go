package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/qs3c/grade_go_server/config"
	"github.com/qs3c/grade_go_server/internal/model"
	"github.com/qs3c/grade_go_server/internal/model/dto"
	"github.com/qs3c/grade_go_server/internal/pkg/queue"
	"github.com/qs3c/grade_go_server/internal/provider"
	"github.com/qs3c/grade_go_server/internal/repository"
)

var (
	ErrProviderNotSupported = errors.New("不支持的批改供应商")
)

// JobService 任务的创建、入队与进度查询
type JobService struct {
	jobRepo   *repository.JobRepository
	subRepo   *repository.SubmissionRepository
	providers *provider.Registry
	q         *queue.Queue
	cfg       *config.Config
}

func NewJobService(
	jobRepo *repository.JobRepository,
	subRepo *repository.SubmissionRepository,
	providers *provider.Registry,
	q *queue.Queue,
	cfg *config.Config,
) *JobService {
	return &JobService{
		jobRepo:   jobRepo,
		subRepo:   subRepo,
		providers: providers,
		q:         q,
		cfg:       cfg,
	}
}

// Create 创建批改任务
func (s *JobService) Create(req *dto.CreateJobRequest) (*model.GradingJob, error) {
	if !s.providers.Supported(req.Provider) {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotSupported, req.Provider)
	}

	job := &model.GradingJob{
		Name:              req.Name,
		Description:       req.Description,
		Provider:          req.Provider,
		Prompt:            req.Prompt,
		MarkingSchemePath: req.MarkingSchemePath,
		Temperature:       req.Temperature,
		MaxTokens:         req.MaxTokens,
		Priority:          req.Priority,
		Status:            model.StatusPending,
		BatchID:           req.BatchID,
	}
	if err := job.SetModelList(req.ModelsToCompare); err != nil {
		return nil, err
	}

	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get 查询任务
func (s *JobService) Get(jobID int64) (*model.GradingJob, error) {
	return s.jobRepo.GetByID(jobID)
}

// AddSubmission 登记一份已落盘的提交文件
func (s *JobService) AddSubmission(jobID int64, fileName, filePath, fileType, uploadID string) (*model.Submission, error) {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		JobID:    job.ID,
		FileName: fileName,
		FilePath: filePath,
		FileType: fileType,
		UploadID: uploadID,
		Status:   model.StatusPending,
	}
	if err := s.subRepo.Create(sub); err != nil {
		return nil, err
	}

	job.TotalSubmissions++
	if err := s.jobRepo.Update(job); err != nil {
		return nil, err
	}
	return sub, nil
}

// Enqueue 将任务投入处理队列
func (s *JobService) Enqueue(ctx context.Context, jobID int64) error {
	if _, err := s.jobRepo.GetByID(jobID); err != nil {
		return err
	}

	msg := &queue.TaskMessage{Task: queue.TaskProcessJob, JobID: jobID}
	if err := s.q.Enqueue(ctx, msg, 0); err != nil {
		return err
	}

	log.Printf("Job %d: enqueued", jobID)
	return nil
}

// GetProgress 任务完成百分比。提交只会从 pending 单向走到终态，
// 所以百分比随处理推进单调不减
func (s *JobService) GetProgress(jobID int64) (*dto.ProgressResponse, error) {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		return nil, err
	}

	total, completed, failed, err := s.subRepo.CountByJob(jobID)
	if err != nil {
		return nil, err
	}

	resp := &dto.ProgressResponse{
		Status:    job.Status,
		Total:     int(total),
		Processed: int(completed + failed),
		Failed:    int(failed),
	}
	if total > 0 {
		resp.Percentage = int(completed+failed) * 100 / int(total)
	}
	return resp, nil
}
