package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"storyteller/internal/chunker"
	"storyteller/internal/config"

	"github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("document not found")

// File - загруженный документ. Handle используется как имя коллекции в chromem
type File struct {
	Handle     string    `json:"handle"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Chars      int       `json:"chars"`
	Chunks     int       `json:"chunks"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Metadata - журнал живых загрузок, по нему Init подчищает следы упавшего процесса
type Metadata struct {
	Files map[string]File `json:"files"`
}

// Library хранит тексты загрузок на диске и индексирует длинные документы в chromem
type Library struct {
	cfg           *config.Config
	db            *chromem.DB
	embeddingFunc chromem.EmbeddingFunc
	chunkers      *chunker.Factory

	mu       sync.RWMutex
	metadata *Metadata
}

func New(cfg *config.Config, embeddingFunc chromem.EmbeddingFunc) *Library {
	return &Library{
		cfg:           cfg,
		db:            chromem.NewDB(),
		embeddingFunc: embeddingFunc,
		chunkers: chunker.NewFactory(chunker.Config{
			MaxChunkSize: cfg.ChunkSize,
			Overlap:      cfg.ChunkOverlap,
		}),
		metadata: &Metadata{Files: make(map[string]File)},
	}
}

// NewEmbeddingFunc выбирает функцию эмбеддингов chromem по конфигу
func NewEmbeddingFunc(cfg *config.Config) chromem.EmbeddingFunc {
	if strings.EqualFold(cfg.Embedding.Provider, "openai") {
		return chromem.NewEmbeddingFuncOpenAI(cfg.LLM.Key, chromem.EmbeddingModelOpenAI(cfg.Embedding.Model))
	}
	return chromem.NewEmbeddingFuncOllama(cfg.Embedding.Model, strings.TrimRight(cfg.Embedding.OllamaURL, "/")+"/api")
}

// Init создаёт каталоги и подчищает загрузки прошлого запуска. Сессии живут только в памяти,
// поэтому после рестарта ни одна загрузка уже не принадлежит сессии.
func (l *Library) Init() error {
	if err := os.MkdirAll(l.cfg.UploadDir, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	if err := l.loadMetadata(); err != nil {
		logrus.WithError(err).Warn("⚠️  Failed to read metadata, sweeping upload directory")
	}

	reclaimed, err := l.reclaim()
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logrus.WithField("documents", reclaimed).Info("🧹 Reclaimed documents from previous run")
	}

	return l.saveMetadata()
}

// reclaim удаляет всё, что осталось от прошлого процесса: записи метаданных
// и любые файлы в каталоге загрузок
func (l *Library) reclaim() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.metadata.Files = make(map[string]File)

	entries, err := os.ReadDir(l.cfg.UploadDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read upload directory: %w", err)
	}
	reclaimed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(l.cfg.UploadDir, e.Name())); err != nil && !os.IsNotExist(err) {
			return reclaimed, fmt.Errorf("failed to remove stale upload: %w", err)
		}
		reclaimed++
	}
	return reclaimed, nil
}

// Get возвращает метаданные загрузки
func (l *Library) Get(handle string) (File, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	f, ok := l.metadata.Files[handle]
	if !ok {
		return File{}, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return f, nil
}

// Text читает извлечённый текст загрузки
func (l *Library) Text(handle string) (string, error) {
	if _, err := l.Get(handle); err != nil {
		return "", err
	}
	data, err := os.ReadFile(l.textPath(handle))
	if err != nil {
		return "", fmt.Errorf("failed to read document text: %w", err)
	}
	return string(data), nil
}

// Remove удаляет текст, коллекцию и метаданные загрузки
func (l *Library) Remove(handle string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.metadata.Files[handle]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	delete(l.metadata.Files, handle)
	l.db.DeleteCollection(handle)

	if err := os.Remove(l.textPath(handle)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove document text: %w", err)
	}
	logrus.WithField("handle", handle).Info("🗑️  Document removed")
	return l.saveMetadataLocked()
}

func (l *Library) textPath(handle string) string {
	return filepath.Join(l.cfg.UploadDir, handle+".txt")
}

func (l *Library) loadMetadata() error {
	f, err := os.Open(l.cfg.MetadataFile)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	defer f.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.NewDecoder(f).Decode(l.metadata); err != nil {
		return err
	}
	if l.metadata.Files == nil {
		l.metadata.Files = make(map[string]File)
	}
	return nil
}

func (l *Library) saveMetadata() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.saveMetadataLocked()
}

func (l *Library) saveMetadataLocked() error {
	f, err := os.Create(l.cfg.MetadataFile)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(l.metadata)
}
