package story

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// GeneratePath - маршрут эндпоинта генерации истории
const GeneratePath = "/api/chat/generate-story"

// GenerateRequest - тело POST /api/chat/generate-story
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateResponse - успешный ответ эндпоинта
type GenerateResponse struct {
	Story string `json:"story"`
}

// ErrorResponse - ответ эндпоинта с не-2xx статусом
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Client ходит в удалённый эндпоинт генерации историй
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(GenerateRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+GeneratePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return "", fmt.Errorf("status %d: %s: %s", resp.StatusCode, errResp.Error, errResp.Details)
		}
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Story, nil
}
