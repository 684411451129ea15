package dto

// CreateJobRequest 创建批改任务
type CreateJobRequest struct {
	Name              string   `json:"name" binding:"required"`
	Description       string   `json:"description"`
	Provider          string   `json:"provider" binding:"required"`
	ModelsToCompare   []string `json:"models_to_compare"`
	Prompt            string   `json:"prompt" binding:"required"`
	MarkingSchemePath string   `json:"marking_scheme_path"`
	Temperature       float64  `json:"temperature"`
	MaxTokens         int      `json:"max_tokens"`
	Priority          int      `json:"priority"`
	BatchID           *int64   `json:"batch_id"`
}

// CreateBatchRequest 创建批次
type CreateBatchRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Provider    string  `json:"provider" binding:"required"`
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Priority    int     `json:"priority"`
}

// ProgressResponse 进度查询结果
type ProgressResponse struct {
	Percentage int    `json:"percentage"`
	Status     string `json:"status"`
	Total      int    `json:"total"`
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
}
