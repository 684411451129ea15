package model

import (
	"time"
)

type Batch struct {
	ID            int64   `gorm:"primaryKey" json:"id"`
	Name          string  `gorm:"size:200;not null" json:"name"`
	Description   string  `gorm:"type:text" json:"description,omitempty"`
	Provider      string  `gorm:"size:50;not null" json:"provider"`
	Model         string  `gorm:"size:100" json:"model,omitempty"`
	Prompt        string  `gorm:"type:text" json:"prompt,omitempty"`
	Temperature   float64 `gorm:"default:0" json:"temperature"`
	MaxTokens     int     `gorm:"default:0" json:"max_tokens"`
	Priority      int     `gorm:"default:0" json:"priority"`
	Status        string  `gorm:"size:20;default:pending;index" json:"status"` // pending, processing, paused, completed, cancelled, failed, archived
	TotalJobs     int     `gorm:"default:0" json:"total_jobs"`
	CompletedJobs int     `gorm:"default:0" json:"completed_jobs"`
	FailedJobs    int     `gorm:"default:0" json:"failed_jobs"`
	// 进度计数永远由成员任务状态重算得出，不允许手工修改
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (Batch) TableName() string {
	return "batches"
}
