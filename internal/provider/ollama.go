package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaTimeout = 300 * time.Second

// OllamaClient 本地模型服务器客户端（ollama /api/generate 协议），无需凭证
type OllamaClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

func NewOllamaClient(name, baseURL string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}
	return &OllamaClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// Grade 调用本地模型服务器批改一份文本
func (c *OllamaClient) Grade(ctx context.Context, req *GradeRequest) (*GradeOutcome, error) {
	system := req.Prompt
	if req.MarkingScheme != "" {
		system = system + "\n\nMarking scheme:\n" + req.MarkingScheme
	}

	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	body := ollamaRequest{
		Model:   req.Model,
		System:  system,
		Prompt:  req.Text,
		Stream:  false,
		Options: options,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, NewError(KindUnknown, "failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return nil, NewError(KindUnknown, "failed to build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, NewError(KindUnknown, "failed to parse response: %v", err)
	}
	if ollamaResp.Error != "" {
		return nil, NewError(KindServerError, "ollama error: %s", ollamaResp.Error)
	}

	return &GradeOutcome{
		Grade:            ollamaResp.Response,
		PromptTokens:     ollamaResp.PromptEvalCount,
		CompletionTokens: ollamaResp.EvalCount,
		ProviderLabel:    fmt.Sprintf("%s/%s", c.name, req.Model),
	}, nil
}
