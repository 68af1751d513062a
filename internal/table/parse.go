package table

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Character - персонаж, извлечённый из строки таблицы
type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Personality string `json:"personality"`
}

// Analysis - результат разбора одного ответа ассистента
type Analysis struct {
	Characters []Character `json:"characters"`
}

// Количество колонок: Name | Description | Personality
const columnCount = 3

// Parse разбирает блок, найденный Extract. Первая строка (заголовок) и вторая
// (разделитель) пропускаются по позиции. Строки, в которых после отбрасывания
// пустых ячеек не ровно три ячейки, молча отбрасываются.
func Parse(block string) []Character {
	lines := strings.Split(block, "\n")
	if len(lines) < 3 {
		return nil
	}

	if !isSeparatorRow(lines[1]) {
		logrus.WithField("row", lines[1]).Warn("⚠️  Second table line is not a separator, skipping it anyway")
	}

	var characters []Character
	for _, row := range lines[2:] {
		cells := splitCells(row)
		if len(cells) != columnCount {
			logrus.WithField("cells", len(cells)).Debug("Invalid row format, dropped")
			continue
		}
		characters = append(characters, Character{
			Name:        cells[0],
			Description: cells[1],
			Personality: cells[2],
		})
	}

	return characters
}

// ParseMessage = Extract + Parse. false если таблицы нет или ни одна строка не подошла
func ParseMessage(content string) ([]Character, bool) {
	block, ok := Extract(content)
	if !ok {
		return nil, false
	}
	characters := Parse(block)
	if len(characters) == 0 {
		return nil, false
	}
	return characters, true
}

// splitCells режет строку по | и выбрасывает пустые ячейки (ведущий и хвостовой pipe)
func splitCells(row string) []string {
	var cells []string
	for _, cell := range strings.Split(row, "|") {
		cell = strings.TrimSpace(cell)
		if cell != "" {
			cells = append(cells, cell)
		}
	}
	return cells
}

// isSeparatorRow проверяет строку вида |---|:---:|---|
func isSeparatorRow(row string) bool {
	cells := splitCells(row)
	if len(cells) == 0 {
		return false
	}
	for _, cell := range cells {
		trimmed := strings.Trim(cell, ":")
		if trimmed == "" || strings.Trim(trimmed, "-") != "" {
			return false
		}
	}
	return true
}
