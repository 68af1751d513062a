package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"storyteller/internal/llm"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrTurnInProgress = errors.New("a chat turn is already in progress")

// Message - сообщение в истории чата
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Observer получает результат каждого хода: ответ ассистента или ошибку
type Observer interface {
	AssistantMessage(msg Message)
	TurnFailed(err error)
}

// ContextFunc отдаёт текст загруженного документа, релевантный запросу
type ContextFunc func(ctx context.Context, query string) (string, error)

const systemPrompt = "You are a helpful assistant that answers questions about the document the user uploaded. " +
	"Base your answers only on the document content below."

// Conversation - история чата одной сессии. Append добавляет сообщение пользователя
// и запускает ход модели в фоне; ответ доставляется наблюдателям.
type Conversation struct {
	completer llm.Completer
	docs      ContextFunc

	mu        sync.Mutex
	messages  []Message
	observers []Observer
	busy      bool
	wg        sync.WaitGroup
}

func New(completer llm.Completer, docs ContextFunc) *Conversation {
	return &Conversation{completer: completer, docs: docs}
}

func (c *Conversation) Subscribe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Append добавляет сообщение пользователя. Ход модели не отменяется вместе с ctx.
func (c *Conversation) Append(ctx context.Context, content string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return Message{}, ErrTurnInProgress
	}

	msg := newMessage(llm.RoleUser, content)
	c.messages = append(c.messages, msg)
	c.busy = true

	c.wg.Add(1)
	go c.runTurn(context.WithoutCancel(ctx), content)
	return msg, nil
}

// Messages возвращает копию истории
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Busy сообщает, идёт ли сейчас ход модели
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Wait дожидается завершения текущего хода
func (c *Conversation) Wait() {
	c.wg.Wait()
}

func (c *Conversation) runTurn(ctx context.Context, query string) {
	defer c.wg.Done()

	reply, err := c.complete(ctx, query)

	c.mu.Lock()
	c.busy = false
	var msg Message
	if err == nil {
		msg = newMessage(llm.RoleAssistant, reply)
		c.messages = append(c.messages, msg)
	}
	observers := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	if err != nil {
		logrus.WithError(err).Error("❌ Chat turn failed")
		for _, o := range observers {
			o.TurnFailed(err)
		}
		return
	}
	for _, o := range observers {
		o.AssistantMessage(msg)
	}
}

func (c *Conversation) complete(ctx context.Context, query string) (string, error) {
	var system strings.Builder
	system.WriteString(systemPrompt)
	if c.docs != nil {
		excerpt, err := c.docs(ctx, query)
		if err != nil {
			return "", fmt.Errorf("failed to load document context: %w", err)
		}
		if excerpt != "" {
			system.WriteString("\n\nDocument:\n<<<\n")
			system.WriteString(excerpt)
			system.WriteString("\n>>>")
		}
	}

	c.mu.Lock()
	history := make([]llm.Message, 0, len(c.messages)+1)
	history = append(history, llm.Message{Role: llm.RoleSystem, Content: system.String()})
	for _, m := range c.messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	c.mu.Unlock()

	return c.completer.Complete(ctx, history)
}

func newMessage(role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
