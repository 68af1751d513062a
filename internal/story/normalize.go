package story

import (
	"regexp"
	"strings"
)

var (
	leadingWord  = regexp.MustCompile(`^(In|The)\s+`)
	residualWord = regexp.MustCompile(`^(In|The)\s+$`)
	extraNewline = regexp.MustCompile(`\n{3,}`)
)

// Normalize чистит ответ модели: один раз срезает ведущее "In "/"The " у всего
// текста, схлопывает 3+ переводов строки в 2 и пересобирает абзацы через пустую строку.
func Normalize(raw string) string {
	cleaned := leadingWord.ReplaceAllString(raw, "")
	cleaned = extraNewline.ReplaceAllString(cleaned, "\n\n")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return ""
	}

	var paragraphs []string
	for _, p := range strings.Split(cleaned, "\n") {
		p = strings.TrimSpace(p)
		if p == "" || residualWord.MatchString(p) {
			continue
		}
		paragraphs = append(paragraphs, p)
	}
	return strings.Join(paragraphs, "\n\n")
}

// Paragraphs режет историю на абзацы для отображения
func Paragraphs(story string) []string {
	var paragraphs []string
	for _, p := range strings.Split(story, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" || residualWord.MatchString(p) {
			continue
		}
		paragraphs = append(paragraphs, p)
	}
	return paragraphs
}
