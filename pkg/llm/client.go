// Package llm provides a client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"om-intel-chat/internal/config"
)

// Client defines the interface for an LLM client.
type Client interface {
	// OpenStream 以 role-based 消息调用聊天接口并返回流式响应。
	// 只有上游返回 2xx 时才返回 Stream，调用方负责 Close。
	OpenStream(ctx context.Context, messages []Message, gen *GenerationParams) (Stream, error)
	// Complete 以非流式方式调用聊天接口，jsonMode 为 true 时要求上游输出 JSON 对象。
	Complete(ctx context.Context, messages []Message, jsonMode bool) (string, error)
}

// Stream 是上游 SSE 响应的增量文本读取器。
type Stream interface {
	// Recv 返回下一段非空增量文本，上游结束时返回 io.EOF。
	Recv() (string, error)
	Close() error
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client.
func NewClient(cfg config.LLMConfig, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &openAIClient{cfg: cfg, client: httpClient}
}

// defaultGeneration 从配置注入生成参数（非零值才生效）
func (c *openAIClient) defaultGeneration() *GenerationParams {
	gen := &GenerationParams{}
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		gen.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		gen.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		gen.MaxTokens = &m
	}
	return gen
}

func (c *openAIClient) do(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if reqBody.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}
	return resp, nil
}

func (c *openAIClient) OpenStream(ctx context.Context, messages []Message, gen *GenerationParams) (Stream, error) {
	if gen == nil {
		gen = c.defaultGeneration()
	}
	resp, err := c.do(ctx, chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: gen.Temperature,
		TopP:        gen.TopP,
		MaxTokens:   gen.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return newSSEStream(resp.Body), nil
}

func (c *openAIClient) Complete(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	gen := c.defaultGeneration()
	reqBody := chatRequest{
		Model:     c.cfg.Model,
		Messages:  messages,
		TopP:      gen.TopP,
		MaxTokens: gen.MaxTokens,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
		zero := 0.0
		reqBody.Temperature = &zero
	} else {
		reqBody.Temperature = gen.Temperature
	}

	resp, err := c.do(ctx, reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat api returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// StatusError 表示上游返回了非 2xx 状态码。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat api returned non-2xx status: %d, body: %s", e.StatusCode, e.Body)
}
