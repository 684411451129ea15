package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/grade_go_server/internal/model"
)

// TestBatch 创建测试批次
func TestBatch(t *testing.T, db *gorm.DB, opts ...func(*model.Batch)) *model.Batch {
	t.Helper()

	batch := &model.Batch{
		Name:     fmt.Sprintf("batch_%d", time.Now().UnixNano()%100000),
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Prompt:   "Grade this essay out of 100.",
		Status:   model.StatusPending,
	}
	for _, opt := range opts {
		opt(batch)
	}
	if err := db.Create(batch).Error; err != nil {
		t.Fatalf("Failed to create test batch: %v", err)
	}
	return batch
}

// WithBatchStatus 指定批次状态
func WithBatchStatus(status string) func(*model.Batch) {
	return func(b *model.Batch) {
		b.Status = status
	}
}

// TestJob 创建测试任务
func TestJob(t *testing.T, db *gorm.DB, opts ...func(*model.GradingJob)) *model.GradingJob {
	t.Helper()

	job := &model.GradingJob{
		Name:     fmt.Sprintf("job_%d", time.Now().UnixNano()%100000),
		Provider: "openai",
		Prompt:   "Grade this essay out of 100.",
		Status:   model.StatusPending,
	}
	for _, opt := range opts {
		opt(job)
	}
	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}
	return job
}

// WithJobStatus 指定任务状态
func WithJobStatus(status string) func(*model.GradingJob) {
	return func(j *model.GradingJob) {
		j.Status = status
	}
}

// WithJobBatch 指定所属批次
func WithJobBatch(batchID int64) func(*model.GradingJob) {
	return func(j *model.GradingJob) {
		j.BatchID = &batchID
	}
}

// WithJobPriority 指定优先级
func WithJobPriority(priority int) func(*model.GradingJob) {
	return func(j *model.GradingJob) {
		j.Priority = priority
	}
}

// WithJobProvider 指定供应商
func WithJobProvider(provider string) func(*model.GradingJob) {
	return func(j *model.GradingJob) {
		j.Provider = provider
	}
}

// WithJobModels 指定对比模型列表
func WithJobModels(t *testing.T, models []string) func(*model.GradingJob) {
	return func(j *model.GradingJob) {
		if err := j.SetModelList(models); err != nil {
			t.Fatalf("Failed to set model list: %v", err)
		}
	}
}

// TestSubmission 创建测试提交
func TestSubmission(t *testing.T, db *gorm.DB, jobID int64, opts ...func(*model.Submission)) *model.Submission {
	t.Helper()

	sub := &model.Submission{
		JobID:    jobID,
		FileName: "essay.txt",
		FilePath: fmt.Sprintf("/tmp/uploads/essay_%d.txt", time.Now().UnixNano()),
		FileType: "txt",
		Status:   model.StatusPending,
	}
	for _, opt := range opts {
		opt(sub)
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test submission: %v", err)
	}
	return sub
}

// WithSubmissionStatus 指定提交状态
func WithSubmissionStatus(status string) func(*model.Submission) {
	return func(s *model.Submission) {
		s.Status = status
	}
}

// WithSubmissionFile 指定提交文件路径
func WithSubmissionFile(path, fileType string) func(*model.Submission) {
	return func(s *model.Submission) {
		s.FilePath = path
		s.FileType = fileType
	}
}

// WithSubmissionText 预填提取文本
func WithSubmissionText(text string) func(*model.Submission) {
	return func(s *model.Submission) {
		s.ExtractedText = text
	}
}
