package story

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storyteller/internal/llm"
	"storyteller/internal/table"

	"github.com/sirupsen/logrus"
)

var ErrGenerationFailed = errors.New("failed to generate story")

// SystemPrompt ограничивает ответ модели тремя абзацами
const SystemPrompt = `You are a professional storyteller who has been hired to write a series of short stories for a new anthology. The stories should be captivating, imaginative, and thought-provoking. They should explore a variety of themes and genres, from science fiction and fantasy to mystery and romance. Each story should be unique and memorable, with compelling characters and unexpected plot twists. IMPORTANT: Keep each story concise with a maximum of 3 paragraphs. Make every word count and ensure the story has a clear beginning, middle, and end within this limited space.`

// Generator превращает промпт в сырой текст истории
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// BuildPrompt перечисляет персонажей строками "- name: description (personality)"
func BuildPrompt(characters []table.Character) string {
	lines := make([]string, 0, len(characters))
	for _, c := range characters {
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", c.Name, c.Description, c.Personality))
	}

	var buf strings.Builder
	buf.WriteString("Create a new story using these characters:\n")
	buf.WriteString(strings.Join(lines, "\n"))
	buf.WriteString("\n\nPlease write a complete story with a clear beginning, middle, and end. ")
	buf.WriteString("The story should be engaging and use all the characters in meaningful ways.")
	return buf.String()
}

// Requester строит промпт по персонажам и делает один запрос к генератору, без ретраев
type Requester struct {
	gen Generator
}

func NewRequester(gen Generator) *Requester {
	return &Requester{gen: gen}
}

// Request возвращает нормализованную историю. Пустой набор персонажей - no-op
func (r *Requester) Request(ctx context.Context, characters []table.Character) (string, error) {
	if len(characters) == 0 {
		return "", nil
	}

	raw, err := r.gen.Generate(ctx, BuildPrompt(characters))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	story := Normalize(raw)
	logrus.WithFields(logrus.Fields{
		"characters": len(characters),
		"paragraphs": len(Paragraphs(story)),
	}).Info("📖 Story generated")
	return story, nil
}

// LLMGenerator вызывает модель напрямую с системной инструкцией рассказчика
type LLMGenerator struct {
	completer llm.Completer
}

func NewLLMGenerator(completer llm.Completer) *LLMGenerator {
	return &LLMGenerator{completer: completer}
}

func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.completer.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
}
