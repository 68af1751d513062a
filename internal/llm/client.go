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
	"time"

	"storyteller/internal/config"
	"storyteller/internal/metrics"

	"github.com/sirupsen/logrus"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrMissingAPIKey = errors.New("llm provider api key is not configured")
	ErrEmptyResponse = errors.New("no response from LLM")
)

// Message - одно сообщение в формате OpenAI chat completions
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer отправляет список сообщений модели и возвращает текст ответа
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Client - клиент OpenAI-совместимого /chat/completions
type Client struct {
	cfg        config.LLM
	httpClient *http.Client
}

func NewClient(cfg config.LLM) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete отправляет сообщения в LLM и возвращает ответ
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if c.cfg.Key == "" {
		return "", ErrMissingAPIKey
	}

	started := time.Now()
	content, err := c.complete(ctx, messages)
	metrics.LLMCallDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(started).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMCallTotal.WithLabelValues(c.cfg.Model, status).Inc()
	return content, err
}

func (c *Client) complete(ctx context.Context, messages []Message) (string, error) {
	jsonData, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.URL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Key)

	logrus.WithFields(logrus.Fields{
		"model":    c.cfg.Model,
		"messages": len(messages),
	}).Debug("🤖 Sending completion request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("LLM returned status %d: %s", resp.StatusCode, string(body))
	}

	var response completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return response.Choices[0].Message.Content, nil
}
