package model

import (
	"encoding/json"
	"time"
)

type GradingJob struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:200;not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Provider    string `gorm:"size:50;not null;index" json:"provider"`
	// ModelsToCompare 以 JSON 数组存储，为空时使用供应商默认模型
	ModelsToCompare      string     `gorm:"type:text" json:"models_to_compare,omitempty"`
	Prompt               string     `gorm:"type:text;not null" json:"prompt"`
	MarkingSchemePath    string     `gorm:"size:500" json:"marking_scheme_path,omitempty"`
	Temperature          float64    `gorm:"default:0" json:"temperature"`
	MaxTokens            int        `gorm:"default:0" json:"max_tokens"`
	Priority             int        `gorm:"default:0;index" json:"priority"`
	Status               string     `gorm:"size:20;default:pending;index" json:"status"` // pending, processing, completed, failed
	TotalSubmissions     int        `gorm:"default:0" json:"total_submissions"`
	ProcessedSubmissions int        `gorm:"default:0" json:"processed_submissions"`
	FailedSubmissions    int        `gorm:"default:0" json:"failed_submissions"`
	BatchID              *int64     `gorm:"index" json:"batch_id,omitempty"`
	CreatedAt            time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

func (GradingJob) TableName() string {
	return "grading_jobs"
}

// ModelList 解析 models_to_compare，为空时回退到 fallback
func (j *GradingJob) ModelList(fallback string) []string {
	if j.ModelsToCompare == "" {
		if fallback == "" {
			return nil
		}
		return []string{fallback}
	}
	var models []string
	if err := json.Unmarshal([]byte(j.ModelsToCompare), &models); err != nil || len(models) == 0 {
		if fallback == "" {
			return nil
		}
		return []string{fallback}
	}
	return models
}

// SetModelList 序列化目标模型列表
func (j *GradingJob) SetModelList(models []string) error {
	if len(models) == 0 {
		j.ModelsToCompare = ""
		return nil
	}
	data, err := json.Marshal(models)
	if err != nil {
		return err
	}
	j.ModelsToCompare = string(data)
	return nil
}
