package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/grade_go_server/internal/model"
)

type SubmissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Create(sub *model.Submission) error {
	return r.db.Create(sub).Error
}

func (r *SubmissionRepository) GetByID(id int64) (*model.Submission, error) {
	var sub model.Submission
	err := r.db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByIDWithResults 连带 GradeResult 一起取
func (r *SubmissionRepository) GetByIDWithResults(id int64) (*model.Submission, error) {
	var sub model.Submission
	err := r.db.Preload("GradeResults").Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubmissionRepository) Update(sub *model.Submission) error {
	return r.db.Save(sub).Error
}

// GetPendingByJob 返回任务内待处理提交，按创建序，保证单任务内处理顺序固定
func (r *SubmissionRepository) GetPendingByJob(jobID int64) ([]*model.Submission, error) {
	var subs []*model.Submission
	err := r.db.Where("job_id = ? AND status = ?", jobID, model.StatusPending).
		Order("id ASC").
		Find(&subs).Error
	return subs, err
}

// GetFailedByJob 返回任务内失败的提交，按创建序
func (r *SubmissionRepository) GetFailedByJob(jobID int64) ([]*model.Submission, error) {
	var subs []*model.Submission
	err := r.db.Where("job_id = ? AND status = ?", jobID, model.StatusFailed).
		Order("id ASC").
		Find(&subs).Error
	return subs, err
}

// CountByJob 统计任务内提交总数与各终态数
func (r *SubmissionRepository) CountByJob(jobID int64) (total, completed, failed int64, err error) {
	base := func() *gorm.DB {
		return r.db.Model(&model.Submission{}).Where("job_id = ?", jobID)
	}
	if err = base().Count(&total).Error; err != nil {
		return
	}
	if err = base().Where("status = ?", model.StatusCompleted).Count(&completed).Error; err != nil {
		return
	}
	err = base().Where("status = ?", model.StatusFailed).Count(&failed).Error
	return
}

// ResetToPending 将一份提交重置为待处理并清空错误状态
func (r *SubmissionRepository) ResetToPending(id int64) error {
	return r.db.Model(&model.Submission{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        model.StatusPending,
		"error_message": "",
		"processed_at":  nil,
	}).Error
}

// ResetStuckProcessing 把卡在 processing 超过 olderThan 的提交重置为待处理。
// worker 崩溃后留下的 processing 行由运维清扫恢复，不在核心流程内自动恢复。
func (r *SubmissionRepository) ResetStuckProcessing(olderThan time.Time) (int64, error) {
	result := r.db.Model(&model.Submission{}).
		Where("status = ? AND updated_at < ?", model.StatusProcessing, olderThan).
		Updates(map[string]interface{}{
			"status":        model.StatusPending,
			"error_message": "",
		})
	return result.RowsAffected, result.Error
}
