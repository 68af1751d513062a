package library

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SearchResult - результат векторного поиска
type SearchResult struct {
	Content    string
	Section    string
	Similarity float32
}

// RelevantContext возвращает текст документа для промпта. Короткий документ
// отдаётся целиком, из длинного берутся наиболее похожие на запрос фрагменты.
func (l *Library) RelevantContext(ctx context.Context, handle, query string) (string, error) {
	text, err := l.Text(handle)
	if err != nil {
		return "", err
	}
	if len(text) <= l.cfg.MaxPromptChars {
		return text, nil
	}

	results, err := l.search(ctx, handle, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		// Ничего не прошло порог, берём начало документа
		return truncate(text, l.cfg.MaxPromptChars), nil
	}
	return buildExcerpts(results, l.cfg.MaxPromptChars), nil
}

func (l *Library) search(ctx context.Context, handle, query string) ([]SearchResult, error) {
	coll := l.db.GetCollection(handle, l.embeddingFunc)
	if coll == nil {
		return nil, fmt.Errorf("collection %q not found", handle)
	}

	n := l.cfg.TopK
	if count := coll.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := coll.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	var out []SearchResult
	for _, r := range results {
		if r.Similarity < l.cfg.MinSimilarity {
			continue
		}
		out = append(out, SearchResult{
			Content:    r.Content,
			Section:    r.Metadata["section"],
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

// buildExcerpts группирует фрагменты по секциям и обрезает итог до maxChars
func buildExcerpts(results []SearchResult, maxChars int) string {
	var order []string
	grouped := make(map[string][]string)
	for _, r := range results {
		section := r.Section
		if section == "" {
			section = "Unknown"
		}
		if _, ok := grouped[section]; !ok {
			order = append(order, section)
		}
		grouped[section] = append(grouped[section], r.Content)
	}

	var buf strings.Builder
	for _, section := range order {
		entry := fmt.Sprintf("[%s]\n%s\n\n", section, strings.Join(grouped[section], "\n"))
		if buf.Len()+len(entry) > maxChars {
			remaining := maxChars - buf.Len()
			if remaining > 0 {
				buf.WriteString(truncate(entry, remaining))
			}
			break
		}
		buf.WriteString(entry)
	}
	return strings.TrimSpace(buf.String())
}

// truncate обрезает строку до n байт, не разрывая руну
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
