package provider

import (
	"context"
	"fmt"
)

// ErrorKind 供应商错误的封闭分类
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindRateLimit      ErrorKind = "rate_limit"
	KindTimeout        ErrorKind = "timeout"
	KindNotFound       ErrorKind = "not_found"
	KindServerError    ErrorKind = "server_error"
	KindNetwork        ErrorKind = "network"
	KindUnknown        ErrorKind = "unknown"
)

// Error 带分类的供应商错误。调用方通过 errors.As 取 Kind，
// 预期内的失败永远以该类型返回，不会以未分类错误形式冒出。
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// GradeRequest 一次批改调用的输入
type GradeRequest struct {
	Text          string
	Prompt        string
	Model         string
	MarkingScheme string
	Temperature   float64
	MaxTokens     int
}

// GradeOutcome 一次成功批改的输出
type GradeOutcome struct {
	Grade            string
	PromptTokens     int
	CompletionTokens int
	ProviderLabel    string
}

// Client 批改后端的统一接口。实现必须可并发调用，
// 且自身不持有可变共享状态（限流由外部的 limiter 负责）。
type Client interface {
	// Grade 返回批改结果或 *Error；未配置凭证时必须在发起
	// 网络请求之前直接返回 KindAuthentication。
	Grade(ctx context.Context, req *GradeRequest) (*GradeOutcome, error)
}
