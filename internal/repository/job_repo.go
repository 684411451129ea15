package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/grade_go_server/internal/model"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *model.GradingJob) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id int64) (*model.GradingJob, error) {
	var job model.GradingJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) Update(job *model.GradingJob) error {
	return r.db.Save(job).Error
}

func (r *JobRepository) UpdateStatus(id int64, status string) error {
	return r.db.Model(&model.GradingJob{}).Where("id = ?", id).Update("status", status).Error
}

// ListByBatch 返回批次内全部任务，创建序
func (r *JobRepository) ListByBatch(batchID int64) ([]*model.GradingJob, error) {
	var jobs []*model.GradingJob
	err := r.db.Where("batch_id = ?", batchID).
		Order("id ASC").
		Find(&jobs).Error
	return jobs, err
}

// GetPendingByBatch 返回批次内待处理任务，创建序（优先级排序由调度方负责）
func (r *JobRepository) GetPendingByBatch(batchID int64) ([]*model.GradingJob, error) {
	var jobs []*model.GradingJob
	err := r.db.Where("batch_id = ? AND status = ?", batchID, model.StatusPending).
		Order("id ASC").
		Find(&jobs).Error
	return jobs, err
}

// GetFailedByBatch 返回批次内失败的任务，创建序
func (r *JobRepository) GetFailedByBatch(batchID int64) ([]*model.GradingJob, error) {
	var jobs []*model.GradingJob
	err := r.db.Where("batch_id = ? AND status = ?", batchID, model.StatusFailed).
		Order("id ASC").
		Find(&jobs).Error
	return jobs, err
}

// CountByBatch 统计批次内各状态任务数
func (r *JobRepository) CountByBatch(batchID int64) (total, completed, failed, processing int64, err error) {
	base := func() *gorm.DB {
		return r.db.Model(&model.GradingJob{}).Where("batch_id = ?", batchID)
	}
	if err = base().Count(&total).Error; err != nil {
		return
	}
	if err = base().Where("status = ?", model.StatusCompleted).Count(&completed).Error; err != nil {
		return
	}
	if err = base().Where("status = ?", model.StatusFailed).Count(&failed).Error; err != nil {
		return
	}
	err = base().Where("status = ?", model.StatusProcessing).Count(&processing).Error
	return
}
