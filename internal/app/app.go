package app

import (
	"fmt"
	"net/http"
	"time"

	"storyteller/internal/config"
	"storyteller/internal/flow"
	"storyteller/internal/library"
	"storyteller/internal/llm"
	"storyteller/internal/story"

	"github.com/sirupsen/logrus"
)

type App struct {
	cfg       *config.Config
	library   *library.Library
	sessions  *flow.Manager
	completer llm.Completer
	// generator обслуживает /api/chat/generate-story
	generator story.Generator
	server    *http.Server
}

func New(cfg *config.Config) (*App, error) {
	lib := library.New(cfg, library.NewEmbeddingFunc(cfg))
	completer := llm.NewClient(cfg.LLM)
	return newApp(cfg, lib, completer), nil
}

func newApp(cfg *config.Config, lib *library.Library, completer llm.Completer) *App {
	a := &App{
		cfg:       cfg,
		library:   lib,
		completer: completer,
		generator: story.NewLLMGenerator(completer),
	}

	// Сессии ходят либо во внешний эндпоинт генерации, либо напрямую в модель
	var sessionGen story.Generator = a.generator
	if cfg.StoryBackendURL != "" {
		sessionGen = story.NewClient(cfg.StoryBackendURL, &http.Client{Timeout: cfg.LLM.Timeout})
	}
	a.sessions = flow.NewManager(cfg.SessionTTL, lib, completer, story.NewRequester(sessionGen))

	a.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

func (a *App) Init() error {
	// Модель эмбеддингов нужна только длинным документам, поэтому её отсутствие не фатально
	if err := ensureEmbeddingModel(a.cfg); err != nil {
		logrus.WithError(err).Warn("⚠️  Embedding model is not available, long documents will fail to index")
	}

	if err := a.library.Init(); err != nil {
		return fmt.Errorf("failed to init library: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"addr":     trimHostPrefix(a.cfg.ListenAddr),
		"model":    a.cfg.LLM.Model,
		"embedder": a.cfg.Embedding.Provider,
		"data":     a.cfg.DataDir,
	}).Info("✅ Application initialized")
	return nil
}

// trimHostPrefix делает адрес читаемым в логах
func trimHostPrefix(addr string) string {
	if addr == "" {
		return "localhost"
	}
	if addr[0] == ':' {
		return "127.0.0.1" + addr
	}
	return addr
}
