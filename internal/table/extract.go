package table

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Слова, по которым узнаём строку заголовка таблицы персонажей
var headerKeywords = []string{"name", "description", "personality"}

// Extract находит в ответе ассистента первую markdown-таблицу с персонажами.
// Возвращает строки таблицы, склеенные через \n, либо false если заголовка нет.
func Extract(content string) (string, bool) {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	headerIndex := -1
	for i, line := range lines {
		if isHeaderLine(line) {
			headerIndex = i
			break
		}
	}
	if headerIndex == -1 {
		logrus.Debug("🔍 No table header found in message")
		return "", false
	}

	// Берём строки от заголовка, пока в них есть pipe
	var tableLines []string
	for _, line := range lines[headerIndex:] {
		if !strings.Contains(line, "|") {
			break
		}
		tableLines = append(tableLines, line)
	}

	logrus.WithField("lines", len(tableLines)).Debug("📋 Found table lines")
	return strings.Join(tableLines, "\n"), true
}

func isHeaderLine(line string) bool {
	if !strings.Contains(line, "|") {
		return false
	}
	lower := strings.ToLower(line)
	for _, kw := range headerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
