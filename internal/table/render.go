package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var headerRow = "| Name | Description | Personality |"
var separatorRow = "| --- | --- | --- |"

// Serialize собирает markdown-таблицу, которую Parse превращает обратно в те же записи
func Serialize(characters []Character) string {
	var buf strings.Builder
	buf.WriteString(headerRow)
	buf.WriteString("\n")
	buf.WriteString(separatorRow)
	for _, c := range characters {
		buf.WriteString(fmt.Sprintf("\n| %s | %s | %s |", c.Name, c.Description, c.Personality))
	}
	return buf.String()
}

// RenderHTML рендерит таблицу персонажей в HTML через GFM-расширение goldmark
func RenderHTML(characters []Character) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))

	var buf bytes.Buffer
	if err := md.Convert([]byte(Serialize(characters)), &buf); err != nil {
		return "", fmt.Errorf("failed to render table: %w", err)
	}
	return buf.String(), nil
}

// StructuredOutput - JSON-представление анализа с отступом в 2 пробела
func StructuredOutput(characters []Character) (string, error) {
	if characters == nil {
		characters = []Character{}
	}
	data, err := json.MarshalIndent(Analysis{Characters: characters}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal analysis: %w", err)
	}
	return string(data), nil
}
