package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/grade_go_server/internal/model"
)

type BatchRepository struct {
	db      *gorm.DB
	jobRepo *JobRepository
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db, jobRepo: NewJobRepository(db)}
}

func (r *BatchRepository) Create(batch *model.Batch) error {
	return r.db.Create(batch).Error
}

func (r *BatchRepository) GetByID(id int64) (*model.Batch, error) {
	var batch model.Batch
	err := r.db.Where("id = ?", id).First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *BatchRepository) Update(batch *model.Batch) error {
	return r.db.Save(batch).Error
}

func (r *BatchRepository) UpdateStatus(id int64, status string) error {
	return r.db.Model(&model.Batch{}).Where("id = ?", id).Update("status", status).Error
}

// AssignJob 将任务划入批次；仅批次仍处于 pending 时允许
func (r *BatchRepository) AssignJob(batchID, jobID int64) error {
	return r.db.Model(&model.GradingJob{}).Where("id = ?", jobID).
		Update("batch_id", batchID).Error
}

// RemoveJob 将任务移出批次
func (r *BatchRepository) RemoveJob(jobID int64) error {
	return r.db.Model(&model.GradingJob{}).Where("id = ?", jobID).
		Update("batch_id", nil).Error
}

// RecomputeProgress 由成员任务状态重算批次计数与状态。
// 计数永远重算；状态只在批次处于 processing 时推进到终态，
// paused/cancelled/archived 等人工状态不被覆盖。
func (r *BatchRepository) RecomputeProgress(batchID int64) (*model.Batch, error) {
	batch, err := r.GetByID(batchID)
	if err != nil {
		return nil, err
	}

	total, completed, failed, _, err := r.jobRepo.CountByBatch(batchID)
	if err != nil {
		return nil, err
	}

	batch.TotalJobs = int(total)
	batch.CompletedJobs = int(completed)
	batch.FailedJobs = int(failed)

	if batch.Status == model.StatusProcessing && total > 0 && completed+failed == total {
		now := time.Now()
		batch.CompletedAt = &now
		if completed > 0 {
			batch.Status = model.StatusCompleted
		} else {
			batch.Status = model.StatusFailed
		}
	}

	if err := r.Update(batch); err != nil {
		return nil, err
	}
	return batch, nil
}
