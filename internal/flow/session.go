package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"storyteller/internal/conversation"
	"storyteller/internal/document"
	"storyteller/internal/library"
	"storyteller/internal/llm"
	"storyteller/internal/metrics"
	"storyteller/internal/story"
	"storyteller/internal/table"

	"github.com/sirupsen/logrus"
)

// Documents - хранилище загруженных файлов
type Documents interface {
	Store(ctx context.Context, fileName string, data []byte) (*library.File, error)
	Remove(handle string) error
	RelevantContext(ctx context.Context, handle, query string) (string, error)
}

// Storyteller пишет историю по набору персонажей
type Storyteller interface {
	Request(ctx context.Context, characters []table.Character) (string, error)
}

// Session связывает действия пользователя (загрузка, извлечение, генерация)
// с документом, чатом и генератором историй. Мьютекс не держится во время сетевых вызовов.
type Session struct {
	ID        string
	CreatedAt time.Time

	docs    Documents
	stories Storyteller
	conv    *conversation.Conversation
	log     *logrus.Entry

	mu         sync.Mutex
	state      State
	prev       State // стабильное состояние, в которое откатывается Extracting
	file       *library.File
	uploading  bool
	characters []table.Character
	story      string
	notice     string

	// epoch растёт при каждой смене файла; результаты старой эпохи отбрасываются
	epoch     uint64
	turnEpoch uint64
}

func NewSession(id string, docs Documents, completer llm.Completer, stories Storyteller) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		docs:      docs,
		stories:   stories,
		log:       logrus.WithField("session", id),
	}
	s.conv = conversation.New(completer, s.documentContext)
	s.conv.Subscribe(s)
	return s
}

// Upload сохраняет файл. Второй файл при уже загруженном отклоняется, состояние не меняется.
func (s *Session) Upload(ctx context.Context, fileName string, r io.Reader) (*library.File, error) {
	s.mu.Lock()
	if s.file != nil || s.uploading {
		s.notice = NoticeOneFile
		s.mu.Unlock()
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrFileAlreadyPresent
	}
	if !document.Supported(fileName) {
		s.notice = NoticeUnsupported
		s.mu.Unlock()
		metrics.UploadsTotal.WithLabelValues("unsupported").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, fileName)
	}
	s.uploading = true
	s.mu.Unlock()

	file, err := s.store(context.WithoutCancel(ctx), fileName, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploading = false

	if err != nil {
		s.log.WithError(err).WithField("file", fileName).Error("❌ Upload failed")
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, document.ErrUnsupportedFormat) {
			s.notice = NoticeUnsupported
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
		}
		s.notice = NoticeUploadFailed
		return nil, err
	}

	s.epoch++
	s.file = file
	s.characters = nil
	s.story = ""
	s.notice = ""
	s.state = FileUploaded
	metrics.UploadsTotal.WithLabelValues("ok").Inc()

	s.log.WithFields(logrus.Fields{
		"file":   file.Name,
		"handle": file.Handle,
	}).Info("📎 File uploaded")
	return file, nil
}

func (s *Session) store(ctx context.Context, fileName string, r io.Reader) (*library.File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return s.docs.Store(ctx, fileName, data)
}

// RemoveFile удаляет документ и сбрасывает сессию в Idle
func (s *Session) RemoveFile() error {
	s.mu.Lock()
	if s.file == nil {
		s.mu.Unlock()
		return ErrNoFile
	}
	handle := s.file.Handle
	s.reset()
	s.mu.Unlock()

	if err := s.docs.Remove(handle); err != nil {
		s.log.WithError(err).WithField("handle", handle).Warn("⚠️  Failed to remove document")
	}
	s.log.WithField("handle", handle).Info("🗑️  File removed")
	return nil
}

func (s *Session) reset() {
	s.epoch++
	s.file = nil
	s.characters = nil
	s.story = ""
	s.notice = ""
	s.state = Idle
}

// Close освобождает документ сессии
func (s *Session) Close() {
	if err := s.RemoveFile(); err != nil && !errors.Is(err, ErrNoFile) {
		s.log.WithError(err).Warn("⚠️  Failed to close session")
	}
}

// Extract отправляет в чат запрос на извлечение персонажей. Ответ приходит в AssistantMessage.
func (s *Session) Extract(ctx context.Context) error {
	s.mu.Lock()
	if s.file == nil {
		s.notice = NoticeUploadFirst
		s.mu.Unlock()
		return ErrNoFile
	}
	if s.state.inFlight() || s.conv.Busy() {
		s.mu.Unlock()
		return ErrBusy
	}

	// история сбрасывается при перезапуске извлечения
	s.story = ""
	s.prev = FileUploaded
	if len(s.characters) > 0 {
		s.prev = Extracted
	}
	s.state = Extracting
	s.notice = ""
	s.turnEpoch = s.epoch
	prompt := fmt.Sprintf(extractionPrompt, s.file.Name)
	s.mu.Unlock()

	s.log.Info("🔎 Extracting characters")
	if _, err := s.conv.Append(ctx, prompt); err != nil {
		s.mu.Lock()
		if s.state == Extracting {
			s.state = s.prev
		}
		s.mu.Unlock()
		if errors.Is(err, conversation.ErrTurnInProgress) {
			return ErrBusy
		}
		return err
	}
	return nil
}

// Chat отправляет произвольное сообщение. Таблица персонажей в ответе тоже обновляет анализ.
func (s *Session) Chat(ctx context.Context, content string) (conversation.Message, error) {
	s.mu.Lock()
	if s.conv.Busy() {
		s.mu.Unlock()
		return conversation.Message{}, ErrBusy
	}
	s.turnEpoch = s.epoch
	s.mu.Unlock()

	msg, err := s.conv.Append(ctx, content)
	if errors.Is(err, conversation.ErrTurnInProgress) {
		return msg, ErrBusy
	}
	return msg, err
}

// Messages возвращает историю чата
func (s *Session) Messages() []conversation.Message {
	return s.conv.Messages()
}

// AssistantMessage вызывается чатом по завершении хода модели
func (s *Session) AssistantMessage(msg conversation.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turnEpoch != s.epoch {
		s.log.Debug("Reply for a replaced file, ignored")
		return
	}
	if s.file == nil || s.state == GeneratingStory {
		return
	}

	characters, ok := table.ParseMessage(msg.Content)
	if !ok {
		// отсутствие таблицы не ошибка: анализ просто остаётся прежним
		if s.state == Extracting {
			s.state = s.prev
			metrics.ExtractionsTotal.WithLabelValues("no_table").Inc()
			s.log.Info("🤷 No character table in reply")
		}
		return
	}

	s.characters = characters
	s.story = ""
	s.notice = ""
	s.state = Extracted
	metrics.ExtractionsTotal.WithLabelValues("ok").Inc()
	s.log.WithField("characters", len(characters)).Info("🧑 Characters extracted")
}

// TurnFailed вызывается чатом, если модель не ответила
func (s *Session) TurnFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turnEpoch != s.epoch {
		return
	}
	if s.state == Extracting {
		s.state = s.prev
		s.notice = NoticeAnalyzeFailed
		metrics.ExtractionsTotal.WithLabelValues("failed").Inc()
	} else {
		s.notice = NoticeChatFailed
	}
	s.log.WithError(err).Warn("⚠️  Assistant turn failed")
}

// GenerateStory пишет историю по текущему анализу. Ошибка генерации только логируется,
// уведомление не выставляется.
func (s *Session) GenerateStory(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Extracted:
	case StoryReady:
		s.mu.Unlock()
		return ErrStoryExists
	case Extracting, GeneratingStory:
		s.mu.Unlock()
		return ErrBusy
	default:
		s.mu.Unlock()
		return ErrNoAnalysis
	}
	s.state = GeneratingStory
	epoch := s.epoch
	characters := append([]table.Character(nil), s.characters...)
	s.mu.Unlock()

	started := time.Now()
	text, err := s.stories.Request(context.WithoutCancel(ctx), characters)
	metrics.StoryGenerationDuration.Observe(time.Since(started).Seconds())
	if err == nil && text == "" {
		err = fmt.Errorf("%w: empty story", story.ErrGenerationFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch || s.state != GeneratingStory {
		s.log.Debug("Story for a replaced file, discarded")
		return nil
	}
	if err != nil {
		s.state = Extracted
		metrics.StoryGenerationTotal.WithLabelValues("failed").Inc()
		s.log.WithError(err).Error("❌ Story generation failed")
		return err
	}

	s.story = text
	s.state = StoryReady
	metrics.StoryGenerationTotal.WithLabelValues("ok").Inc()
	return nil
}

// documentContext отдаёт чату фрагменты текущего документа
func (s *Session) documentContext(ctx context.Context, query string) (string, error) {
	s.mu.Lock()
	file := s.file
	s.mu.Unlock()

	if file == nil {
		return "", nil
	}
	return s.docs.RelevantContext(ctx, file.Handle, query)
}

// Snapshot - то, что видит пользователь
type Snapshot struct {
	ID               string            `json:"id"`
	State            string            `json:"state"`
	File             *library.File     `json:"file,omitempty"`
	Characters       []table.Character `json:"characters"`
	StructuredOutput string            `json:"structured_output,omitempty"`
	TableHTML        string            `json:"table_html,omitempty"`
	Story            string            `json:"story,omitempty"`
	Paragraphs       []string          `json:"paragraphs,omitempty"`
	Notice           string            `json:"notice,omitempty"`
	Busy             bool              `json:"busy"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ID:         s.ID,
		State:      s.state.String(),
		Characters: append([]table.Character{}, s.characters...),
		Story:      s.story,
		Notice:     s.notice,
		Busy:       s.state.inFlight() || s.uploading,
	}
	if s.file != nil {
		file := *s.file
		snap.File = &file
	}
	s.mu.Unlock()

	if len(snap.Characters) > 0 {
		var err error
		if snap.StructuredOutput, err = table.StructuredOutput(snap.Characters); err != nil {
			s.log.WithError(err).Warn("⚠️  Failed to build structured output")
		}
		if snap.TableHTML, err = table.RenderHTML(snap.Characters); err != nil {
			s.log.WithError(err).Warn("⚠️  Failed to render table")
		}
	}
	if snap.Story != "" {
		snap.Paragraphs = story.Paragraphs(snap.Story)
	}
	return snap
}
