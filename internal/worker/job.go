package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/grade_go_server/internal/model"
	"github.com/qs3c/grade_go_server/internal/pkg/lease"
	"github.com/qs3c/grade_go_server/internal/pkg/pubsub"
	"github.com/qs3c/grade_go_server/internal/repository"
)

// ErrJobNotFound 任务不存在，属致命错误，调用方不应重投
var ErrJobNotFound = errors.New("grading job not found")

// JobProcessor 处理一次 process_job 投递：顺序批改任务内全部待处理提交，
// 然后由提交状态重算任务进度。单个任务内串行处理，
// 避免一个任务吃满供应商的全部并发额度；并行度来自多个任务同时被
// 不同 worker 处理，每份提交各自抢限流槽位。
type JobProcessor struct {
	jobRepo   *repository.JobRepository
	subRepo   *repository.SubmissionRepository
	batchRepo *repository.BatchRepository
	processor *SubmissionProcessor
	publisher *pubsub.Publisher
	leases    *lease.Manager
}

func NewJobProcessor(
	jobRepo *repository.JobRepository,
	subRepo *repository.SubmissionRepository,
	batchRepo *repository.BatchRepository,
	processor *SubmissionProcessor,
	publisher *pubsub.Publisher,
	leases *lease.Manager,
) *JobProcessor {
	return &JobProcessor{
		jobRepo:   jobRepo,
		subRepo:   subRepo,
		batchRepo: batchRepo,
		processor: processor,
		publisher: publisher,
		leases:    leases,
	}
}

// Process 处理一个任务。队列是 at-least-once 投递：
// 已完成的提交被 pending 过滤器天然跳过，重复投递对已完成工作是空操作；
// 同一任务的并发投递靠任务租约互斥。
func (p *JobProcessor) Process(ctx context.Context, jobID int64) error {
	job, err := p.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("failed to load job %d: %w", jobID, err)
	}

	// 批次被暂停/取消后，已入队的任务不再启动，留在 pending
	if skip, reason := p.batchBlocksJob(job); skip {
		log.Printf("Job %d: skipped, batch %s", jobID, reason)
		return nil
	}

	var jobLease *lease.Lease
	if p.leases != nil {
		l, ok, err := p.leases.Acquire(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to acquire lease for job %d: %w", jobID, err)
		}
		if !ok {
			log.Printf("Job %d: already being processed by another worker, skipping", jobID)
			return nil
		}
		jobLease = l
		defer func() {
			if err := jobLease.Release(context.Background()); err != nil {
				log.Printf("Job %d: failed to release lease: %v", jobID, err)
			}
		}()
	}

	now := time.Now()
	job.Status = model.StatusProcessing
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	if err := p.jobRepo.Update(job); err != nil {
		return fmt.Errorf("failed to mark job %d processing: %w", jobID, err)
	}

	subs, err := p.subRepo.GetPendingByJob(jobID)
	if err != nil {
		return p.failJob(job, fmt.Errorf("failed to load pending submissions for job %d: %w", jobID, err))
	}

	for _, sub := range subs {
		if err := p.processor.Process(ctx, job, sub); err != nil {
			// 业务失败已在提交层落库，能走到这里的是持久化一类的意外错误：
			// 任务落败并抛给队列层处理
			return p.failJob(job, err)
		}
		if jobLease != nil {
			if err := jobLease.Renew(ctx); err != nil {
				log.Printf("Job %d: failed to renew lease: %v", jobID, err)
			}
		}
		p.publishProgress(ctx, job)
	}

	if err := p.recomputeStatus(job); err != nil {
		return err
	}

	if job.BatchID != nil {
		if _, err := p.batchRepo.RecomputeProgress(*job.BatchID); err != nil {
			return fmt.Errorf("failed to recompute batch %d progress: %w", *job.BatchID, err)
		}
	}

	p.publishProgress(ctx, job)
	log.Printf("Job %d: sweep finished, %d/%d processed (%d failed)",
		job.ID, job.ProcessedSubmissions, job.TotalSubmissions, job.FailedSubmissions)
	return nil
}

// recomputeStatus 由提交状态重算任务计数与状态
func (p *JobProcessor) recomputeStatus(job *model.GradingJob) error {
	total, completed, failed, err := p.subRepo.CountByJob(job.ID)
	if err != nil {
		return fmt.Errorf("failed to count submissions for job %d: %w", job.ID, err)
	}

	job.TotalSubmissions = int(total)
	job.ProcessedSubmissions = int(completed + failed)
	job.FailedSubmissions = int(failed)

	if completed+failed == total {
		now := time.Now()
		job.CompletedAt = &now
		if total > 0 && completed == 0 {
			job.Status = model.StatusFailed
		} else {
			job.Status = model.StatusCompleted
		}
	}

	if err := p.jobRepo.Update(job); err != nil {
		return fmt.Errorf("failed to update job %d: %w", job.ID, err)
	}
	return nil
}

// failJob 意外错误：任务落败，错误继续向队列层传播
func (p *JobProcessor) failJob(job *model.GradingJob, cause error) error {
	job.Status = model.StatusFailed
	now := time.Now()
	job.CompletedAt = &now
	if err := p.jobRepo.Update(job); err != nil {
		log.Printf("Job %d: failed to mark job failed: %v", job.ID, err)
	}
	return cause
}

// batchBlocksJob 判断任务所属批次是否禁止其启动
func (p *JobProcessor) batchBlocksJob(job *model.GradingJob) (bool, string) {
	if job.BatchID == nil {
		return false, ""
	}
	batch, err := p.batchRepo.GetByID(*job.BatchID)
	if err != nil {
		log.Printf("Job %d: failed to load batch %d: %v", job.ID, *job.BatchID, err)
		return false, ""
	}
	switch batch.Status {
	case model.StatusPaused, model.StatusCancelled:
		return true, batch.Status
	}
	return false, ""
}

func (p *JobProcessor) publishProgress(ctx context.Context, job *model.GradingJob) {
	if p.publisher == nil {
		return
	}
	total, completed, failed, err := p.subRepo.CountByJob(job.ID)
	if err != nil {
		return
	}
	msg := &pubsub.ProgressMessage{
		JobID:     job.ID,
		Status:    job.Status,
		Processed: int(completed + failed),
		Total:     int(total),
		Failed:    int(failed),
	}
	if job.BatchID != nil {
		msg.BatchID = *job.BatchID
	}
	if err := p.publisher.PublishProgress(ctx, msg); err != nil {
		log.Printf("Job %d: failed to publish progress: %v", job.ID, err)
	}
}
