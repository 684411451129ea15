package service

import (
	"context"
	"log"

	"github.com/qs3c/grade_go_server/internal/model"
	"github.com/qs3c/grade_go_server/internal/pkg/queue"
	"github.com/qs3c/grade_go_server/internal/repository"
)

// RetryService 提交粒度的重试入口。重试不改写旧的批改结果，
// 只把提交重置回 pending，再通过一条 process_job 消息触发整个任务的
// 重新扫描，与队列的 at-least-once 契约保持一致。
type RetryService struct {
	subRepo *repository.SubmissionRepository
	jobRepo *repository.JobRepository
	q       *queue.Queue
}

func NewRetryService(
	subRepo *repository.SubmissionRepository,
	jobRepo *repository.JobRepository,
	q *queue.Queue,
) *RetryService {
	return &RetryService{subRepo: subRepo, jobRepo: jobRepo, q: q}
}

// RetrySubmission 重试单份提交。只有 failed 状态可以重试，
// 已完成的批改是不可变的；非 failed 状态返回 false 且不入队。
// 连续两次调用只有第一次生效：第一次重置后提交已是 pending。
func (s *RetryService) RetrySubmission(ctx context.Context, submissionID int64) (bool, error) {
	sub, err := s.subRepo.GetByID(submissionID)
	if err != nil {
		return false, err
	}
	if sub.Status != model.StatusFailed {
		return false, nil
	}

	if err := s.subRepo.ResetToPending(submissionID); err != nil {
		return false, err
	}

	if err := s.markJobPending(sub.JobID); err != nil {
		return false, err
	}

	msg := &queue.TaskMessage{Task: queue.TaskProcessJob, JobID: sub.JobID}
	if err := s.q.Enqueue(ctx, msg, 0); err != nil {
		return false, err
	}

	log.Printf("Submission %d: queued for retry (job %d)", submissionID, sub.JobID)
	return true, nil
}

// RetryFailedSubmissions 重试任务内全部失败提交，重置后只触发一次
// 任务扫描，维持单任务串行处理的约定；无失败提交时返回 0 且不入队
func (s *RetryService) RetryFailedSubmissions(ctx context.Context, jobID int64) (int, error) {
	if _, err := s.jobRepo.GetByID(jobID); err != nil {
		return 0, err
	}

	subs, err := s.subRepo.GetFailedByJob(jobID)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, nil
	}

	for _, sub := range subs {
		if err := s.subRepo.ResetToPending(sub.ID); err != nil {
			return 0, err
		}
	}

	if err := s.markJobPending(jobID); err != nil {
		return 0, err
	}

	msg := &queue.TaskMessage{Task: queue.TaskProcessJob, JobID: jobID}
	if err := s.q.Enqueue(ctx, msg, 0); err != nil {
		return 0, err
	}

	log.Printf("Job %d: queued retry of %d failed submissions", jobID, len(subs))
	return len(subs), nil
}

func (s *RetryService) markJobPending(jobID int64) error {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		return err
	}
	job.Status = model.StatusPending
	job.CompletedAt = nil
	return s.jobRepo.Update(job)
}
