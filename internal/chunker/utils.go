package chunker

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode/utf8"
)

// CreateChunk создаёт фрагмент с ID на основе содержимого
func CreateChunk(text, source, section string, metadata map[string]string) Chunk {
	text = strings.TrimSpace(text)
	hash := sha256.Sum256([]byte(text + source))

	if metadata == nil {
		metadata = make(map[string]string)
	}
	metadata["source"] = source
	metadata["section"] = section

	return Chunk{
		ID:       fmt.Sprintf("%x", hash[:8]),
		Text:     text,
		Source:   source,
		Section:  section,
		Metadata: metadata,
	}
}

// lastNRunes возвращает хвост строки для overlap
func lastNRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}

// SplitByParagraphs разбивает текст на непустые абзацы
func SplitByParagraphs(text string) []string {
	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitBySize режет текст на окна по maxSize рун с шагом maxSize-overlap
func splitBySize(text string, maxSize, overlap int) []string {
	var parts []string
	runes := []rune(text)
	step := maxSize - overlap
	if step <= 0 {
		step = maxSize
	}

	for i := 0; i < len(runes); i += step {
		end := i + maxSize
		if end > len(runes) {
			end = len(runes)
		}
		if part := strings.TrimSpace(string(runes[i:end])); part != "" {
			parts = append(parts, part)
		}
		if end >= len(runes) {
			break
		}
	}
	return parts
}

// packParagraphs собирает абзацы в фрагменты не длиннее maxSize рун, с хвостом предыдущего в начале.
// Абзац длиннее maxSize сначала режется окнами.
func packParagraphs(paragraphs []string, maxSize, overlap int, emit func(text string, part int)) {
	var current strings.Builder
	size := 0
	part := 1

	for _, para := range fitParagraphs(paragraphs, maxSize, overlap) {
		paraSize := utf8.RuneCountInString(para)
		if size > 0 && size+len(separator)+paraSize > maxSize {
			text := current.String()
			emit(text, part)
			part++

			current.Reset()
			size = 0
			if overlap > 0 {
				tail := lastNRunes(text, overlap)
				tailSize := utf8.RuneCountInString(tail)
				if tailSize+len(separator)+paraSize <= maxSize {
					current.WriteString(tail)
					size = tailSize
				}
			}
		}

		if size > 0 {
			current.WriteString(separator)
			size += len(separator)
		}
		current.WriteString(para)
		size += paraSize
	}

	if size > 0 {
		emit(current.String(), part)
	}
}

const separator = "\n\n"

func fitParagraphs(paragraphs []string, maxSize, overlap int) []string {
	fitted := make([]string, 0, len(paragraphs))
	for _, para := range paragraphs {
		if utf8.RuneCountInString(para) <= maxSize {
			fitted = append(fitted, para)
			continue
		}
		fitted = append(fitted, splitBySize(para, maxSize, overlap)...)
	}
	return fitted
}
