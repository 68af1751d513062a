package chunker

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownChunker режет markdown-рукопись по главам (заголовкам)
type MarkdownChunker struct {
	config Config
}

func NewMarkdownChunker(config Config) *MarkdownChunker {
	return &MarkdownChunker{config: config}
}

func (m *MarkdownChunker) Name() string {
	return "markdown"
}

// DocumentStructure - сколько заголовков каждого уровня в документе
type DocumentStructure struct {
	HeadingCounts   map[int]int
	TotalParagraphs int
}

// Минимум заголовков уровня, чтобы считать их главами
var minHeadings = map[int]int{1: 2, 2: 2, 3: 3}

func (m *MarkdownChunker) Chunk(content, source string) ([]Chunk, error) {
	src := []byte(content)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	structure := analyzeStructure(doc)
	level, err := selectLevel(structure)
	if err != nil {
		return nil, fmt.Errorf("markdown chunker cannot process this content: %w", err)
	}

	chunks := m.chunkByHeadings(doc, src, source, level)
	logrus.WithFields(logrus.Fields{
		"chunker":  m.Name(),
		"headings": structure.HeadingCounts,
		"level":    level,
		"chunks":   len(chunks),
	}).Debug("✅ Document chunked")
	return chunks, nil
}

func analyzeStructure(doc ast.Node) DocumentStructure {
	structure := DocumentStructure{HeadingCounts: make(map[int]int)}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			structure.HeadingCounts[node.Level]++
		case *ast.Paragraph:
			structure.TotalParagraphs++
		}
		return ast.WalkContinue, nil
	})

	return structure
}

// selectLevel выбирает самый крупный уровень заголовков, которых достаточно много
func selectLevel(structure DocumentStructure) (int, error) {
	for level := 1; level <= 3; level++ {
		if structure.HeadingCounts[level] >= minHeadings[level] {
			return level, nil
		}
	}
	return 0, fmt.Errorf("no suitable heading structure (headings: %v, paragraphs: %d)",
		structure.HeadingCounts, structure.TotalParagraphs)
}

func (m *MarkdownChunker) chunkByHeadings(doc ast.Node, src []byte, source string, level int) []Chunk {
	var chunks []Chunk
	var current strings.Builder
	section := ""

	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			chunks = append(chunks, m.finalize(current.String(), source, section, level)...)
		}
		current.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, ok := n.(*ast.Paragraph); ok {
				current.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			title := headingText(node, src)
			if node.Level <= level {
				flush()
				section = title
				current.WriteString(title + "\n\n")
			} else {
				current.WriteString("\n" + title + "\n\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			current.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				current.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})
	flush()

	return chunks
}

// finalize делит слишком длинную главу на части по абзацам
func (m *MarkdownChunker) finalize(body, source, section string, level int) []Chunk {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= m.config.MaxChunkSize {
		return []Chunk{CreateChunk(body, source, section, map[string]string{
			"level": strconv.Itoa(level),
		})}
	}

	var chunks []Chunk
	packParagraphs(SplitByParagraphs(body), m.config.MaxChunkSize, m.config.Overlap, func(text string, part int) {
		name := section
		if part > 1 {
			name = fmt.Sprintf("%s (part %d)", section, part)
		}
		chunks = append(chunks, CreateChunk(text, source, name, map[string]string{
			"level": strconv.Itoa(level),
			"part":  strconv.Itoa(part),
		}))
	})
	return chunks
}

func headingText(node ast.Node, src []byte) string {
	var buf strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
		}
	}
	return buf.String()
}
