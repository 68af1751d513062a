package chunker

import (
	"path/filepath"
	"strings"
)

// Factory выбирает chunker по расширению загруженного файла
type Factory struct {
	config Config
}

func NewFactory(config Config) *Factory {
	return &Factory{config: config}
}

// ForFile возвращает markdown chunker для .md, для остального - текстовый
func (f *Factory) ForFile(fileName string) Chunker {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".md", ".markdown":
		return NewMarkdownChunker(f.config)
	default:
		return NewTextChunker(f.config)
	}
}

// Fallback - chunker, который справляется с любым текстом
func (f *Factory) Fallback() Chunker {
	return NewTextChunker(f.config)
}
