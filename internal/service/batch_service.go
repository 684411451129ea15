package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/qs3c/grade_go_server/config"
	"github.com/qs3c/grade_go_server/internal/model"
	"github.com/qs3c/grade_go_server/internal/model/dto"
	"github.com/qs3c/grade_go_server/internal/pkg/queue"
	"github.com/qs3c/grade_go_server/internal/repository"
)

var (
	ErrBatchNotStartable   = errors.New("批次当前状态不允许启动")
	ErrBatchEmpty          = errors.New("批次内没有任务，不允许启动")
	ErrBatchNotPausable    = errors.New("批次当前状态不允许暂停")
	ErrBatchNotResumable   = errors.New("批次当前状态不允许恢复")
	ErrBatchNotCancellable = errors.New("批次当前状态不允许取消")
	ErrBatchNotArchivable  = errors.New("批次当前状态不允许归档")
	ErrBatchNotEditable    = errors.New("批次已开始，不允许调整成员任务")
)

// BatchService 批次调度：按优先级排序成员任务，错峰入队，
// 并管理批次生命周期。非法状态流转一律报错，不静默忽略。
type BatchService struct {
	batchRepo *repository.BatchRepository
	jobRepo   *repository.JobRepository
	subRepo   *repository.SubmissionRepository
	q         *queue.Queue
	cfg       *config.Config
}

func NewBatchService(
	batchRepo *repository.BatchRepository,
	jobRepo *repository.JobRepository,
	subRepo *repository.SubmissionRepository,
	q *queue.Queue,
	cfg *config.Config,
) *BatchService {
	return &BatchService{
		batchRepo: batchRepo,
		jobRepo:   jobRepo,
		subRepo:   subRepo,
		q:         q,
		cfg:       cfg,
	}
}

// Create 创建批次
func (s *BatchService) Create(req *dto.CreateBatchRequest) (*model.Batch, error) {
	batch := &model.Batch{
		Name:        req.Name,
		Description: req.Description,
		Provider:    req.Provider,
		Model:       req.Model,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Priority:    req.Priority,
		Status:      model.StatusPending,
	}
	if err := s.batchRepo.Create(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Get 查询批次
func (s *BatchService) Get(batchID int64) (*model.Batch, error) {
	return s.batchRepo.GetByID(batchID)
}

// Start 启动批次：待处理任务按优先级降序（同优先级保持创建序）
// 以 i×stagger 的递增延迟入队，摊平批次起始时刻的限流争抢
func (s *BatchService) Start(ctx context.Context, batchID int64) error {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return err
	}
	if batch.Status != model.StatusPending && batch.Status != model.StatusFailed {
		return fmt.Errorf("%w: %s", ErrBatchNotStartable, batch.Status)
	}

	// 空批次没有任何可以收敛到终态的任务，直接拒绝
	total, _, _, _, err := s.jobRepo.CountByBatch(batchID)
	if err != nil {
		return err
	}
	if total == 0 {
		return ErrBatchEmpty
	}

	jobs, err := s.jobRepo.GetPendingByBatch(batchID)
	if err != nil {
		return err
	}

	now := time.Now()
	batch.Status = model.StatusProcessing
	batch.StartedAt = &now
	if err := s.batchRepo.Update(batch); err != nil {
		return err
	}

	if err := s.enqueueStaggered(ctx, jobs); err != nil {
		return err
	}

	_, err = s.batchRepo.RecomputeProgress(batchID)
	return err
}

// Pause 暂停批次；已在处理中的任务会跑完，只拦截尚未启动的
func (s *BatchService) Pause(ctx context.Context, batchID int64) error {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return err
	}
	if batch.Status != model.StatusProcessing {
		return fmt.Errorf("%w: %s", ErrBatchNotPausable, batch.Status)
	}
	return s.batchRepo.UpdateStatus(batchID, model.StatusPaused)
}

// Resume 恢复批次，把仍在 pending 的任务重新错峰入队
func (s *BatchService) Resume(ctx context.Context, batchID int64) error {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return err
	}
	if batch.Status != model.StatusPaused {
		return fmt.Errorf("%w: %s", ErrBatchNotResumable, batch.Status)
	}

	if err := s.batchRepo.UpdateStatus(batchID, model.StatusProcessing); err != nil {
		return err
	}

	jobs, err := s.jobRepo.GetPendingByBatch(batchID)
	if err != nil {
		return err
	}
	return s.enqueueStaggered(ctx, jobs)
}

// Cancel 取消批次。不抢占在途任务：已在处理中的任务/提交跑到终态，
// 只阻止后续任务启动
func (s *BatchService) Cancel(ctx context.Context, batchID int64) error {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return err
	}
	switch batch.Status {
	case model.StatusPending, model.StatusProcessing, model.StatusPaused:
		return s.batchRepo.UpdateStatus(batchID, model.StatusCancelled)
	}
	return fmt.Errorf("%w: %s", ErrBatchNotCancellable, batch.Status)
}

// Archive 归档已完成的批次
func (s *BatchService) Archive(ctx context.Context, batchID int64) error {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return err
	}
	if batch.Status != model.StatusCompleted {
		return fmt.Errorf("%w: %s", ErrBatchNotArchivable, batch.Status)
	}
	return s.batchRepo.UpdateStatus(batchID, model.StatusArchived)
}

// AssignJob 把任务划入批次，仅批次未启动时允许
func (s *BatchService) AssignJob(ctx context.Context, batchID, jobID int64) error {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return err
	}
	if batch.Status != model.StatusPending {
		return fmt.Errorf("%w: %s", ErrBatchNotEditable, batch.Status)
	}
	if _, err := s.jobRepo.GetByID(jobID); err != nil {
		return err
	}
	if err := s.batchRepo.AssignJob(batchID, jobID); err != nil {
		return err
	}
	_, err = s.batchRepo.RecomputeProgress(batchID)
	return err
}

// RemoveJob 把任务移出批次，仅批次未启动时允许
func (s *BatchService) RemoveJob(ctx context.Context, batchID, jobID int64) error {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return err
	}
	if batch.Status != model.StatusPending {
		return fmt.Errorf("%w: %s", ErrBatchNotEditable, batch.Status)
	}
	if err := s.batchRepo.RemoveJob(jobID); err != nil {
		return err
	}
	_, err = s.batchRepo.RecomputeProgress(batchID)
	return err
}

// RetryFailedJobs 重置批次内全部失败任务并重新调度，返回重置数量
func (s *BatchService) RetryFailedJobs(ctx context.Context, batchID int64) (int, error) {
	batch, err := s.batchRepo.GetByID(batchID)
	if err != nil {
		return 0, err
	}

	jobs, err := s.jobRepo.GetFailedByBatch(batchID)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	for _, job := range jobs {
		subs, err := s.subRepo.GetFailedByJob(job.ID)
		if err != nil {
			return 0, err
		}
		for _, sub := range subs {
			if err := s.subRepo.ResetToPending(sub.ID); err != nil {
				return 0, err
			}
		}
		job.Status = model.StatusPending
		job.CompletedAt = nil
		if err := s.jobRepo.Update(job); err != nil {
			return 0, err
		}
	}

	now := time.Now()
	batch.Status = model.StatusProcessing
	if batch.StartedAt == nil {
		batch.StartedAt = &now
	}
	batch.CompletedAt = nil
	if err := s.batchRepo.Update(batch); err != nil {
		return 0, err
	}

	if err := s.enqueueStaggered(ctx, jobs); err != nil {
		return 0, err
	}

	log.Printf("Batch %d: retrying %d failed jobs", batchID, len(jobs))
	return len(jobs), nil
}

// GetProgress 批次完成百分比，由成员任务状态重算
func (s *BatchService) GetProgress(ctx context.Context, batchID int64) (int, error) {
	batch, err := s.batchRepo.RecomputeProgress(batchID)
	if err != nil {
		return 0, err
	}
	if batch.TotalJobs == 0 {
		return 0, nil
	}
	return (batch.CompletedJobs + batch.FailedJobs) * 100 / batch.TotalJobs, nil
}

// enqueueStaggered 优先级降序稳定排序后按 i×stagger 延迟入队
func (s *BatchService) enqueueStaggered(ctx context.Context, jobs []*model.GradingJob) error {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].Priority > jobs[j].Priority
	})

	stagger := time.Duration(s.cfg.Queue.StaggerSeconds) * time.Second
	if stagger <= 0 {
		stagger = 5 * time.Second
	}

	for i, job := range jobs {
		msg := &queue.TaskMessage{Task: queue.TaskProcessJob, JobID: job.ID}
		if err := s.q.Enqueue(ctx, msg, time.Duration(i)*stagger); err != nil {
			return fmt.Errorf("failed to enqueue job %d: %w", job.ID, err)
		}
	}
	return nil
}
