package chunker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// TextChunker разбивает plain text по абзацам или по размеру с overlap
type TextChunker struct {
	config Config
}

func NewTextChunker(config Config) *TextChunker {
	return &TextChunker{config: config}
}

func (s *TextChunker) Name() string {
	return "text"
}

func (s *TextChunker) Chunk(content, source string) ([]Chunk, error) {
	if s.config.MaxChunkSize <= s.config.Overlap {
		return nil, fmt.Errorf("chunk size %d must exceed overlap %d", s.config.MaxChunkSize, s.config.Overlap)
	}

	var chunks []Chunk
	method := "size"
	if strings.Contains(content, "\n\n") {
		method = "paragraphs"
		packParagraphs(SplitByParagraphs(content), s.config.MaxChunkSize, s.config.Overlap, func(text string, part int) {
			chunks = append(chunks, s.newChunk(text, source, part, method))
		})
	} else {
		chunks = s.chunkBySize(content, source)
	}

	logrus.WithFields(logrus.Fields{
		"chunker": s.Name(),
		"method":  method,
		"chunks":  len(chunks),
	}).Debug("✅ Document chunked")
	return chunks, nil
}

// chunkBySize режет по рунам окнами MaxChunkSize с шагом MaxChunkSize-Overlap
func (s *TextChunker) chunkBySize(content, source string) []Chunk {
	parts := splitBySize(content, s.config.MaxChunkSize, s.config.Overlap)
	chunks := make([]Chunk, 0, len(parts))
	for i, text := range parts {
		chunks = append(chunks, s.newChunk(text, source, i+1, "size"))
	}
	return chunks
}

func (s *TextChunker) newChunk(text, source string, part int, method string) Chunk {
	return CreateChunk(text, source, fmt.Sprintf("Part %d", part), map[string]string{
		"part":   strconv.Itoa(part),
		"method": method,
	})
}
