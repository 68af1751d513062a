package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyteller/internal/config"

	"github.com/sirupsen/logrus"
)

// ensureEmbeddingModel проверяет, что Ollama запущена и модель эмбеддингов скачана.
// Для провайдера openai ничего не делает.
func ensureEmbeddingModel(cfg *config.Config) error {
	if !strings.EqualFold(cfg.Embedding.Provider, "ollama") {
		return nil
	}

	type ollamaPullRequest struct {
		Name   string `json:"name"`
		Stream bool   `json:"stream"`
	}

	client := &http.Client{Timeout: 5 * time.Second}
	baseURL := strings.TrimRight(cfg.Embedding.OllamaURL, "/")
	model := cfg.Embedding.Model

	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		return fmt.Errorf("ollama is not reachable at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama is not running at %s: status %d", baseURL, resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if bytes.Contains(body, []byte(model)) {
		logrus.WithField("model", model).Info("🧠 Embedding model is available")
		return nil
	}

	logrus.WithField("model", model).Info("⬇️  Embedding model not found, pulling...")
	b, _ := json.Marshal(ollamaPullRequest{Name: model, Stream: false})

	// скачивание модели может идти долго
	pullClient := &http.Client{Timeout: 30 * time.Minute}
	pullResp, err := pullClient.Post(baseURL+"/api/pull", "application/json", bytes.NewBuffer(b))
	if err != nil {
		return fmt.Errorf("failed to pull model %s: %w", model, err)
	}
	defer pullResp.Body.Close()
	if pullResp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to pull model %s: status %d", model, pullResp.StatusCode)
	}

	logrus.WithField("model", model).Info("✅ Embedding model pulled")
	return nil
}
