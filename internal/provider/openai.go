package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAITimeout = 120 * time.Second

// OpenAIClient 兼容 OpenAI chat completions 协议的云端供应商客户端
// （openai / deepseek / moonshot 等均走此协议）
type OpenAIClient struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewOpenAIClient(name, apiKey, baseURL string, timeout time.Duration) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = defaultOpenAITimeout
	}
	return &OpenAIClient{
		name:       name,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Grade 调用 chat completions 接口批改一份文本
func (c *OpenAIClient) Grade(ctx context.Context, req *GradeRequest) (*GradeOutcome, error) {
	// 凭证缺失时直接失败，不发起网络请求
	if c.apiKey == "" {
		return nil, NewError(KindAuthentication, "no API key configured for provider %s", c.name)
	}

	body := chatRequest{
		Model:       req.Model,
		Messages:    buildMessages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, NewError(KindUnknown, "failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, NewError(KindUnknown, "failed to build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(KindNetwork, "failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, NewError(KindUnknown, "failed to parse response: %v", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, NewError(KindUnknown, "provider returned no choices")
	}

	return &GradeOutcome{
		Grade:            chatResp.Choices[0].Message.Content,
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
		ProviderLabel:    fmt.Sprintf("%s/%s", c.name, req.Model),
	}, nil
}

// buildMessages 组装 system + user 消息，评分标准拼入 system prompt
func buildMessages(req *GradeRequest) []chatMessage {
	system := req.Prompt
	if req.MarkingScheme != "" {
		system = system + "\n\nMarking scheme:\n" + req.MarkingScheme
	}
	return []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: req.Text},
	}
}

// classifyHTTPStatus 将 HTTP 状态码映射到封闭的错误分类
func classifyHTTPStatus(status int, body []byte) *Error {
	detail := extractAPIError(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(KindAuthentication, "authentication failed (HTTP %d): %s", status, detail)
	case status == http.StatusTooManyRequests:
		return NewError(KindRateLimit, "rate limited (HTTP %d): %s", status, detail)
	case status == http.StatusNotFound:
		return NewError(KindNotFound, "not found (HTTP %d): %s", status, detail)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewError(KindTimeout, "request timed out (HTTP %d): %s", status, detail)
	case status >= 500:
		return NewError(KindServerError, "provider server error (HTTP %d): %s", status, detail)
	default:
		return NewError(KindUnknown, "unexpected status (HTTP %d): %s", status, detail)
	}
}

// classifyTransportError 区分超时与普通网络错误
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, "request timed out: %v", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(KindTimeout, "request timed out: %v", err)
	}
	return NewError(KindNetwork, "network error: %v", err)
}

func extractAPIError(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
