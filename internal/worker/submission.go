package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/qs3c/grade_go_server/config"
	"github.com/qs3c/grade_go_server/internal/model"
	"github.com/qs3c/grade_go_server/internal/pkg/extract"
	"github.com/qs3c/grade_go_server/internal/pkg/limiter"
	"github.com/qs3c/grade_go_server/internal/provider"
	"github.com/qs3c/grade_go_server/internal/repository"
)

// SubmissionProcessor 驱动单份提交走完
// pending → processing → {completed | failed} 的状态机。
// 供应商错误和提取错误一律落成终态加可读消息，不向上抛；
// 只有持久化失败会作为 error 返回。
type SubmissionProcessor struct {
	subRepo    *repository.SubmissionRepository
	resultRepo *repository.GradeResultRepository
	providers  *provider.Registry
	limiters   *limiter.Registry
	extractor  *extract.Extractor
	cfg        *config.Config
}

func NewSubmissionProcessor(
	subRepo *repository.SubmissionRepository,
	resultRepo *repository.GradeResultRepository,
	providers *provider.Registry,
	limiters *limiter.Registry,
	extractor *extract.Extractor,
	cfg *config.Config,
) *SubmissionProcessor {
	return &SubmissionProcessor{
		subRepo:    subRepo,
		resultRepo: resultRepo,
		providers:  providers,
		limiters:   limiters,
		extractor:  extractor,
		cfg:        cfg,
	}
}

// Process 批改一份提交
func (p *SubmissionProcessor) Process(ctx context.Context, job *model.GradingJob, sub *model.Submission) error {
	// 供应商校验先于一切 I/O
	if !p.providers.Supported(job.Provider) {
		return p.fail(sub, fmt.Sprintf("unsupported provider: %s", job.Provider))
	}

	sub.Status = model.StatusProcessing
	if err := p.subRepo.Update(sub); err != nil {
		return fmt.Errorf("failed to mark submission %d processing: %w", sub.ID, err)
	}

	// 提取文本只做一次，重试复用已有结果
	if sub.ExtractedText == "" {
		text := p.extractor.Extract(sub.FilePath, sub.FileType)
		if extract.IsError(text) {
			// 文件保留，重试还需要它
			return p.fail(sub, text)
		}
		sub.ExtractedText = text
		if err := p.subRepo.Update(sub); err != nil {
			return fmt.Errorf("failed to save extracted text for submission %d: %w", sub.ID, err)
		}
	}

	models := job.ModelList(p.providers.DefaultModel(job.Provider))
	if len(models) == 0 {
		return p.fail(sub, fmt.Sprintf("no model configured for provider %s", job.Provider))
	}

	client, _ := p.providers.Resolve(job.Provider)
	markingScheme := p.loadMarkingScheme(job)

	var firstSuccess *model.GradeResult
	var lastErr string

	// 单模型失败不阻断其余模型
	for _, modelName := range models {
		result := p.gradeOne(ctx, job, sub, client, modelName, markingScheme)
		if err := p.resultRepo.Create(result); err != nil {
			return fmt.Errorf("failed to save grade result for submission %d: %w", sub.ID, err)
		}
		if result.Status == model.StatusCompleted {
			if firstSuccess == nil {
				firstSuccess = result
			}
		} else {
			lastErr = result.ErrorMessage
		}
	}

	now := time.Now()
	sub.ProcessedAt = &now

	if firstSuccess != nil {
		// 旧前端只认单结果字段，取首个成功的模型
		sub.Status = model.StatusCompleted
		sub.ErrorMessage = ""
		sub.Grade = firstSuccess.Grade
		sub.GradedBy = firstSuccess.ProviderLabel
		if err := p.subRepo.Update(sub); err != nil {
			return fmt.Errorf("failed to complete submission %d: %w", sub.ID, err)
		}
		p.removeSourceFile(sub)
		return nil
	}

	sub.Status = model.StatusFailed
	sub.ErrorMessage = lastErr
	if err := p.subRepo.Update(sub); err != nil {
		return fmt.Errorf("failed to mark submission %d failed: %w", sub.ID, err)
	}
	return nil
}

// gradeOne 在供应商并发槽位内完成一次模型调用，结果落成一条 GradeResult
func (p *SubmissionProcessor) gradeOne(
	ctx context.Context,
	job *model.GradingJob,
	sub *model.Submission,
	client provider.Client,
	modelName string,
	markingScheme string,
) *model.GradeResult {
	result := &model.GradeResult{
		SubmissionID: sub.ID,
		Provider:     job.Provider,
		Model:        modelName,
	}

	lim := p.limiters.Get(job.Provider)
	if err := lim.Acquire(ctx, p.limiters.AcquireTimeout()); err != nil {
		// 槽位等待超时是瞬时失败，标记失败后留给重试
		result.Status = model.StatusFailed
		result.ErrorMessage = fmt.Sprintf("concurrency limit: %v", err)
		return result
	}
	defer lim.Release(ctx)

	temperature := job.Temperature
	if temperature == 0 {
		temperature = p.cfg.Grading.DefaultTemperature
	}
	maxTokens := job.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.Grading.DefaultMaxTokens
	}

	outcome, err := client.Grade(ctx, &provider.GradeRequest{
		Text:          sub.ExtractedText,
		Prompt:        job.Prompt,
		Model:         modelName,
		MarkingScheme: markingScheme,
		Temperature:   temperature,
		MaxTokens:     maxTokens,
	})
	if err != nil {
		var provErr *provider.Error
		if !errors.As(err, &provErr) {
			provErr = provider.NewError(provider.KindUnknown, "%v", err)
		}
		result.Status = model.StatusFailed
		result.ErrorMessage = provErr.Error()
		return result
	}

	result.Status = model.StatusCompleted
	result.Grade = outcome.Grade
	result.PromptTokens = outcome.PromptTokens
	result.CompletionTokens = outcome.CompletionTokens
	result.ProviderLabel = outcome.ProviderLabel
	return result
}

// fail 将提交落为失败终态
func (p *SubmissionProcessor) fail(sub *model.Submission, message string) error {
	now := time.Now()
	sub.Status = model.StatusFailed
	sub.ErrorMessage = message
	sub.ProcessedAt = &now
	if err := p.subRepo.Update(sub); err != nil {
		return fmt.Errorf("failed to mark submission %d failed: %w", sub.ID, err)
	}
	return nil
}

// loadMarkingScheme 评分标准是可选的，读不到时降级为空并记日志
func (p *SubmissionProcessor) loadMarkingScheme(job *model.GradingJob) string {
	if job.MarkingSchemePath == "" {
		return ""
	}
	data, err := os.ReadFile(job.MarkingSchemePath)
	if err != nil {
		log.Printf("Job %d: failed to read marking scheme %s: %v", job.ID, job.MarkingSchemePath, err)
		return ""
	}
	return string(data)
}

// removeSourceFile 批改成功后源文件不再需要；失败的提交保留文件供重试
func (p *SubmissionProcessor) removeSourceFile(sub *model.Submission) {
	if sub.FilePath == "" {
		return
	}
	if err := os.Remove(sub.FilePath); err != nil && !os.IsNotExist(err) {
		log.Printf("Submission %d: failed to remove source file %s: %v", sub.ID, sub.FilePath, err)
	}
}
