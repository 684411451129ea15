package model

// 任务/提交状态
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// 批次独有状态
const (
	StatusPaused    = "paused"
	StatusCancelled = "cancelled"
	StatusArchived  = "archived"
)
