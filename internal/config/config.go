package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	DataDir    string `env:"DATA_DIR" envDefault:"./data"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"text"`

	LLM       LLM       `envPrefix:"LLM_"`
	Embedding Embedding `envPrefix:"EMBED_"`

	ChunkSize      int     `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap   int     `env:"CHUNK_OVERLAP" envDefault:"200"`
	TopK           int     `env:"TOP_K" envDefault:"5"`
	MinSimilarity  float32 `env:"MIN_SIMILARITY" envDefault:"0.2"`
	MaxPromptChars int     `env:"MAX_PROMPT_CHARS" envDefault:"12000"`
	MaxUploadBytes int64   `env:"MAX_UPLOAD_BYTES" envDefault:"20971520"`

	// Адрес сервиса, отдающего /api/chat/generate-story. Пусто - вызываем модель напрямую
	StoryBackendURL string `env:"STORY_BACKEND_URL"`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	RateLimit  float64       `env:"RATE_LIMIT" envDefault:"5"`
	RateBurst  int           `env:"RATE_BURST" envDefault:"10"`

	MetadataFile string
	UploadDir    string
}

// LLM - OpenAI-совместимый провайдер для чата и генерации историй
type LLM struct {
	URL         string        `env:"URL" envDefault:"https://api.openai.com/v1"`
	Key         string        `env:"API_KEY"`
	Model       string        `env:"MODEL" envDefault:"gpt-4o-mini"`
	MaxTokens   int           `env:"MAX_TOKENS" envDefault:"1024"`
	Temperature float64       `env:"TEMPERATURE" envDefault:"0.7"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"0s"`
}

// Embedding описывает функцию эмбеддингов для chromem
type Embedding struct {
	Provider  string `env:"PROVIDER" envDefault:"ollama"`
	OllamaURL string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	Model     string `env:"MODEL" envDefault:"nomic-embed-text"`
}

func Init(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	// Ключ провайдера по умолчанию берём из OPENAI_API_KEY
	if cfg.LLM.Key == "" {
		cfg.LLM.Key = os.Getenv("OPENAI_API_KEY")
	}
	cfg.derivePaths()
	return cfg.Validate()
}

// derivePaths вычисляет пути к метаданным и загрузкам внутри DataDir
func (c *Config) derivePaths() {
	dir := strings.TrimRight(c.DataDir, "/")
	if dir == "" {
		dir = "."
	}
	if c.MetadataFile == "" {
		c.MetadataFile = dir + "/metadata.json"
	}
	if c.UploadDir == "" {
		c.UploadDir = dir + "/uploads"
	}
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive, got %d", c.TopK)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown EMBED_PROVIDER: %s", c.Embedding.Provider)
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT and RATE_BURST must be positive")
	}
	return nil
}
