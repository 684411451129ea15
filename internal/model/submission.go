package model

import (
	"time"
)

type Submission struct {
	ID            int64  `gorm:"primaryKey" json:"id"`
	JobID         int64  `gorm:"not null;index" json:"job_id"`
	FileName      string `gorm:"size:255;not null" json:"file_name"`
	FilePath      string `gorm:"size:500;not null" json:"file_path"`
	FileType      string `gorm:"size:20;not null" json:"file_type"`
	UploadID      string `gorm:"size:64;index" json:"upload_id,omitempty"`
	ExtractedText string `gorm:"type:text" json:"extracted_text,omitempty"`
	Status        string `gorm:"size:20;default:pending;index" json:"status"` // pending, processing, completed, failed
	ErrorMessage  string `gorm:"type:text" json:"error_message,omitempty"`
	// 单模型时代的冗余字段，保留给旧前端；取首个成功的 GradeResult
	Grade        string        `gorm:"type:text" json:"grade,omitempty"`
	GradedBy     string        `gorm:"size:100" json:"graded_by,omitempty"`
	GradeResults []GradeResult `gorm:"foreignKey:SubmissionID" json:"grade_results,omitempty"`
	CreatedAt    time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty"`
}

func (Submission) TableName() string {
	return "submissions"
}

type GradeResult struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	SubmissionID     int64     `gorm:"not null;index" json:"submission_id"`
	Provider         string    `gorm:"size:50;not null" json:"provider"`
	Model            string    `gorm:"size:100;not null" json:"model"`
	Status           string    `gorm:"size:20;not null" json:"status"` // completed, failed
	Grade            string    `gorm:"type:text" json:"grade,omitempty"`
	ErrorMessage     string    `gorm:"type:text" json:"error_message,omitempty"`
	PromptTokens     int       `gorm:"default:0" json:"prompt_tokens,omitempty"`
	CompletionTokens int       `gorm:"default:0" json:"completion_tokens,omitempty"`
	ProviderLabel    string    `gorm:"size:100" json:"provider_label,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func (GradeResult) TableName() string {
	return "grade_results"
}
