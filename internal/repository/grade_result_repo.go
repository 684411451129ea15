package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/grade_go_server/internal/model"
)

type GradeResultRepository struct {
	db *gorm.DB
}

func NewGradeResultRepository(db *gorm.DB) *GradeResultRepository {
	return &GradeResultRepository{db: db}
}

// Create 追加一条批改结果；结果行创建后不再修改，重试产生新行
func (r *GradeResultRepository) Create(result *model.GradeResult) error {
	return r.db.Create(result).Error
}

// ListBySubmission 返回一份提交的全部批改结果，创建序
func (r *GradeResultRepository) ListBySubmission(submissionID int64) ([]*model.GradeResult, error) {
	var results []*model.GradeResult
	err := r.db.Where("submission_id = ?", submissionID).
		Order("id ASC").
		Find(&results).Error
	return results, err
}

// CountBySubmission 统计一份提交的结果数
func (r *GradeResultRepository) CountBySubmission(submissionID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.GradeResult{}).
		Where("submission_id = ?", submissionID).
		Count(&count).Error
	return count, err
}
