package library

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"storyteller/internal/document"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"
)

// Store извлекает текст из загруженного файла и сохраняет его под новым handle.
// Документы длиннее MaxPromptChars дополнительно режутся на фрагменты и индексируются.
func (l *Library) Store(ctx context.Context, fileName string, data []byte) (*File, error) {
	text, err := document.ReadText(fileName, data)
	if err != nil {
		return nil, err
	}

	file := File{
		Handle:     uuid.NewString(),
		Name:       fileName,
		Size:       int64(len(data)),
		Chars:      len(text),
		UploadedAt: time.Now(),
	}

	log := logrus.WithFields(logrus.Fields{
		"handle": file.Handle,
		"file":   fileName,
	})
	log.WithField("bytes", file.Size).Info("📄 File loaded")

	if err := os.WriteFile(l.textPath(file.Handle), []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("failed to save document text: %w", err)
	}

	if len(text) > l.cfg.MaxPromptChars {
		n, err := l.indexDocument(ctx, file, text)
		if err != nil {
			_ = os.Remove(l.textPath(file.Handle))
			return nil, err
		}
		file.Chunks = n
		log.WithField("chunks", n).Info("📦 Document indexed")
	}

	l.mu.Lock()
	l.metadata.Files[file.Handle] = file
	err = l.saveMetadataLocked()
	l.mu.Unlock()
	if err != nil {
		log.WithError(err).Warn("⚠️  Failed to save metadata")
	}

	return &file, nil
}

// indexDocument режет текст на фрагменты и кладёт их в коллекцию handle
func (l *Library) indexDocument(ctx context.Context, file File, text string) (int, error) {
	chunks, err := l.chunkers.ForFile(file.Name).Chunk(text, file.Handle)
	if err != nil {
		logrus.WithError(err).Warn("⚠️  Chunker failed, falling back to text chunker")
		chunks, err = l.chunkers.Fallback().Chunk(text, file.Handle)
		if err != nil {
			return 0, fmt.Errorf("text chunker failed: %w", err)
		}
	}

	coll, err := l.db.GetOrCreateCollection(file.Handle, map[string]string{"name": file.Name}, l.embeddingFunc)
	if err != nil {
		return 0, fmt.Errorf("failed to create collection: %w", err)
	}

	// Одинаковые абзацы дают одинаковый ID, в коллекцию кладём один раз
	seen := make(map[string]bool, len(chunks))
	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		if seen[ch.ID] {
			continue
		}
		seen[ch.ID] = true
		docs = append(docs, chromem.Document{
			ID:       ch.ID,
			Content:  ch.Text,
			Metadata: ch.Metadata,
		})
	}

	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		l.db.DeleteCollection(file.Handle)
		return 0, fmt.Errorf("failed to index document: %w", err)
	}
	return len(docs), nil
}
