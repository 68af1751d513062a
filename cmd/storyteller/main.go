package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"storyteller/internal/app"
	"storyteller/internal/config"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Флаги командной строки переопределяют переменные окружения
	addr := flag.String("addr", "", "HTTP listen address (overrides LISTEN_ADDR)")
	dataDir := flag.String("data", "", "Data directory for uploads and metadata (overrides DATA_DIR)")
	flag.Parse()

	// Загружаем .env (опционально)
	_ = godotenv.Load()

	if *addr != "" {
		os.Setenv("LISTEN_ADDR", *addr)
	}
	if *dataDir != "" {
		os.Setenv("DATA_DIR", *dataDir)
	}

	cfg := config.Config{}
	if err := config.Init(&cfg); err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	setupLogging(&cfg)

	if cfg.LLM.Key == "" {
		logrus.Warn("⚠️  OPENAI_API_KEY is not set, every model call will fail")
	}

	a, err := app.New(&cfg)
	if err != nil {
		logrus.Fatalf("failed to create app: %v", err)
	}

	// Инициализируем (каталоги, уборка документов прошлого запуска)
	if err := a.Init(); err != nil {
		logrus.Fatalf("failed to initialize app: %v", err)
	}

	// Контекст с сигналами завершения
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logrus.Fatalf("app stopped with error: %v", err)
	}
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithField("level", cfg.LogLevel).Warn("⚠️  Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
