package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryForFile(t *testing.T) {
	f := NewFactory(Config{MaxChunkSize: 100, Overlap: 10})

	assert.Equal(t, "markdown", f.ForFile("novel.MD").Name())
	assert.Equal(t, "text", f.ForFile("novel.txt").Name())
	assert.Equal(t, "text", f.ForFile("novel.pdf").Name())
	assert.Equal(t, "text", f.Fallback().Name())
}

func TestTextChunkerByParagraphs(t *testing.T) {
	c := NewTextChunker(Config{MaxChunkSize: 40, Overlap: 0})
	content := "Alice walked into the forest.\n\nBob followed her quietly.\n\nMira sang by the fire."

	chunks, err := c.Chunk(content, "upload-1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "Alice walked into the forest.", chunks[0].Text)
	assert.Equal(t, "Part 1", chunks[0].Section)
	assert.Equal(t, "upload-1", chunks[0].Metadata["source"])
	assert.Equal(t, "paragraphs", chunks[0].Metadata["method"])
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
}

func TestTextChunkerBySizeWithOverlap(t *testing.T) {
	c := NewTextChunker(Config{MaxChunkSize: 10, Overlap: 2})
	chunks, err := c.Chunk(strings.Repeat("a", 25), "src")
	require.NoError(t, err)

	// шаг 8: [0,10) [8,18) [16,25)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Text, 10)
	assert.Len(t, chunks[2].Text, 9)
	assert.Equal(t, "size", chunks[1].Metadata["method"])
}

func TestTextChunkerSplitsOversizedParagraph(t *testing.T) {
	tests := []struct {
		name string
		long string
	}{
		{name: "ascii", long: strings.Repeat("b", 100)},
		{name: "cyrillic", long: strings.Repeat("ж", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewTextChunker(Config{MaxChunkSize: 30, Overlap: 5})
			chunks, err := c.Chunk("Short opening line.\n\n"+tt.long+"\n\nThe end.", "src")
			require.NoError(t, err)
			require.Greater(t, len(chunks), 3)

			var joined strings.Builder
			for _, ch := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 30, ch.Text)
				joined.WriteString(ch.Text)
			}
			assert.Contains(t, joined.String(), "Short opening line.")
			assert.Contains(t, joined.String(), "The end.")
			assert.GreaterOrEqual(t, strings.Count(joined.String(), string([]rune(tt.long)[:1])), 100)
		})
	}
}

func TestPackParagraphsOverlapStaysWithinSize(t *testing.T) {
	paragraphs := []string{strings.Repeat("a", 10), strings.Repeat("b", 18), strings.Repeat("c", 20)}

	var parts []string
	packParagraphs(paragraphs, 25, 5, func(text string, part int) {
		parts = append(parts, text)
	})

	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 25, p)
		assert.NotContains(t, p, "\n\n\n\n")
	}
	assert.Equal(t, "aaaaaaaaaa", parts[0])
	assert.Equal(t, "aaaaa\n\n"+strings.Repeat("b", 18), parts[1])
	// хвост не влезает, фрагмент начинается без него
	assert.Equal(t, strings.Repeat("c", 20), parts[2])
}

func TestTextChunkerRejectsBadConfig(t *testing.T) {
	_, err := NewTextChunker(Config{MaxChunkSize: 5, Overlap: 5}).Chunk("text", "src")
	assert.Error(t, err)
}

func TestMarkdownChunkerSplitsByChapters(t *testing.T) {
	content := "# Chapter One\n\nAlice found a map.\nIt was old.\n\n# Chapter Two\n\nBob read the map.\n\n## A detour\n\nThey got lost.\n"
	c := NewMarkdownChunker(Config{MaxChunkSize: 500, Overlap: 0})

	chunks, err := c.Chunk(content, "book")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "Chapter One", chunks[0].Section)
	assert.Contains(t, chunks[0].Text, "Alice found a map.\nIt was old.")
	assert.Equal(t, "Chapter Two", chunks[1].Section)
	assert.Contains(t, chunks[1].Text, "A detour")
	assert.Contains(t, chunks[1].Text, "They got lost.")
	assert.Equal(t, "1", chunks[1].Metadata["level"])
}

func TestMarkdownChunkerWithoutHeadings(t *testing.T) {
	_, err := NewMarkdownChunker(Config{MaxChunkSize: 100}).Chunk("just a paragraph", "src")
	assert.Error(t, err)
}

func TestMarkdownChunkerSplitsLongChapter(t *testing.T) {
	para := strings.Repeat("word ", 10)
	content := "# One\n\n" + para + "\n\n" + para + "\n\n# Two\n\nshort\n"
	c := NewMarkdownChunker(Config{MaxChunkSize: 60, Overlap: 0})

	chunks, err := c.Chunk(content, "src")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 3)
	assert.Equal(t, "One", chunks[0].Section)
	assert.Equal(t, "One (part 2)", chunks[1].Section)
}
