package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"storyteller/internal/document"
	"storyteller/internal/library"
	"storyteller/internal/llm"
	"storyteller/internal/story"
	"storyteller/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeRowReply = `Here you go:

| Name | Description | Personality |
|------|-------------|-------------|
| Alice | A young explorer | Curious |
| Bob | The village smith | Gruff |
| Mira | A wandering bard | Cheerful |`

type fakeDocs struct {
	mu      sync.Mutex
	files   map[string]string
	removed []string
	next    int
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{files: make(map[string]string)}
}

func (d *fakeDocs) Store(ctx context.Context, fileName string, data []byte) (*library.File, error) {
	if !document.Supported(fileName) {
		return nil, document.ErrUnsupportedFormat
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	handle := fileName + "#" + strings.Repeat("x", d.next)
	d.files[handle] = string(data)
	return &library.File{Handle: handle, Name: fileName, Size: int64(len(data))}, nil
}

func (d *fakeDocs) Remove(handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[handle]; !ok {
		return library.ErrNotFound
	}
	delete(d.files, handle)
	d.removed = append(d.removed, handle)
	return nil
}

func (d *fakeDocs) RelevantContext(ctx context.Context, handle, query string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.files[handle]
	if !ok {
		return "", library.ErrNotFound
	}
	return text, nil
}

// scriptedCompleter отдаёт ответы по очереди
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
	gate    chan struct{}
}

func (c *scriptedCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "I have nothing to add.", nil
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func newTestSession(completer llm.Completer, gen story.Generator) (*Session, *fakeDocs) {
	docs := newFakeDocs()
	return NewSession("test", docs, completer, story.NewRequester(gen)), docs
}

func upload(t *testing.T, s *Session, name string) *library.File {
	t.Helper()
	file, err := s.Upload(context.Background(), name, strings.NewReader("Alice, Bob and Mira lived in a village."))
	require.NoError(t, err)
	return file
}

func extract(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Extract(context.Background()))
	s.Wait()
}

func TestEndToEnd(t *testing.T) {
	var prompt string
	s, _ := newTestSession(
		&scriptedCompleter{replies: []string{threeRowReply}},
		generatorFunc(func(ctx context.Context, p string) (string, error) {
			prompt = p
			return "In a village, a hero rose.\n\nThe end.", nil
		}),
	)

	assert.Equal(t, Idle.String(), s.Snapshot().State)

	upload(t, s, "tale.txt")
	assert.Equal(t, FileUploaded.String(), s.Snapshot().State)

	extract(t, s)
	snap := s.Snapshot()
	assert.Equal(t, Extracted.String(), snap.State)
	require.Len(t, snap.Characters, 3)
	assert.Equal(t, table.Character{Name: "Alice", Description: "A young explorer", Personality: "Curious"}, snap.Characters[0])
	assert.Contains(t, snap.StructuredOutput, "\n  \"characters\": [")
	assert.Contains(t, snap.TableHTML, "<table>")

	require.NoError(t, s.GenerateStory(context.Background()))
	assert.Contains(t, prompt, "- Bob: The village smith (Gruff)")

	snap = s.Snapshot()
	assert.Equal(t, StoryReady.String(), snap.State)
	assert.Equal(t, []string{"a village, a hero rose.", "The end."}, snap.Paragraphs)

	// в истории чата: запрос на извлечение и ответ с таблицей
	messages := s.Messages()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, `uploaded file "tale.txt"`)
	assert.Equal(t, threeRowReply, messages[1].Content)
}

func TestSecondUploadIsRejected(t *testing.T) {
	s, docs := newTestSession(
		&scriptedCompleter{replies: []string{threeRowReply}},
		generatorFunc(func(ctx context.Context, p string) (string, error) {
			return "Once upon a time.", nil
		}),
	)

	first := upload(t, s, "tale.txt")
	extract(t, s)
	require.NoError(t, s.GenerateStory(context.Background()))
	before := s.Snapshot()

	_, err := s.Upload(context.Background(), "other.txt", strings.NewReader("other"))
	assert.ErrorIs(t, err, ErrFileAlreadyPresent)

	after := s.Snapshot()
	assert.Equal(t, NoticeOneFile, after.Notice)
	assert.Equal(t, before.Characters, after.Characters)
	assert.Equal(t, before.Story, after.Story)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, first.Handle, after.File.Handle)
	assert.Len(t, docs.files, 1)
}

func TestUploadAfterRemoveResets(t *testing.T) {
	s, docs := newTestSession(&scriptedCompleter{replies: []string{threeRowReply}}, nil)

	first := upload(t, s, "tale.txt")
	extract(t, s)
	require.Len(t, s.Snapshot().Characters, 3)

	require.NoError(t, s.RemoveFile())
	snap := s.Snapshot()
	assert.Equal(t, Idle.String(), snap.State)
	assert.Empty(t, snap.Characters)
	assert.Nil(t, snap.File)
	assert.Equal(t, []string{first.Handle}, docs.removed)

	assert.ErrorIs(t, s.RemoveFile(), ErrNoFile)

	upload(t, s, "second.md")
	snap = s.Snapshot()
	assert.Equal(t, FileUploaded.String(), snap.State)
	assert.Empty(t, snap.Characters)
}

func TestUploadUnsupportedFile(t *testing.T) {
	s, docs := newTestSession(&scriptedCompleter{}, nil)

	_, err := s.Upload(context.Background(), "cover.png", strings.NewReader("png"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	assert.Equal(t, NoticeUnsupported, s.Snapshot().Notice)
	assert.Equal(t, Idle.String(), s.Snapshot().State)
	assert.Empty(t, docs.files)
}

func TestExtractRequiresFile(t *testing.T) {
	s, _ := newTestSession(&scriptedCompleter{}, nil)

	assert.ErrorIs(t, s.Extract(context.Background()), ErrNoFile)
	assert.Equal(t, NoticeUploadFirst, s.Snapshot().Notice)
}

func TestMissingTableIsSilent(t *testing.T) {
	s, _ := newTestSession(&scriptedCompleter{replies: []string{"I could not find any characters."}}, nil)

	upload(t, s, "tale.txt")
	extract(t, s)

	snap := s.Snapshot()
	assert.Equal(t, FileUploaded.String(), snap.State)
	assert.Empty(t, snap.Characters)
	assert.Empty(t, snap.Notice)
}

func TestMissingTableKeepsPreviousAnalysis(t *testing.T) {
	s, _ := newTestSession(&scriptedCompleter{replies: []string{threeRowReply, "No table this time."}}, nil)

	upload(t, s, "tale.txt")
	extract(t, s)
	extract(t, s)

	snap := s.Snapshot()
	assert.Equal(t, Extracted.String(), snap.State)
	assert.Len(t, snap.Characters, 3)
}

func TestExtractionTurnFailure(t *testing.T) {
	s, _ := newTestSession(&scriptedCompleter{err: errors.New("boom")}, nil)

	upload(t, s, "tale.txt")
	extract(t, s)

	snap := s.Snapshot()
	assert.Equal(t, FileUploaded.String(), snap.State)
	assert.Equal(t, NoticeAnalyzeFailed, snap.Notice)
}

func TestChatTurnFailure(t *testing.T) {
	s, _ := newTestSession(&scriptedCompleter{err: errors.New("boom")}, nil)

	upload(t, s, "tale.txt")
	_, err := s.Chat(context.Background(), "who lives in the village?")
	require.NoError(t, err)
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, FileUploaded.String(), snap.State)
	assert.Equal(t, NoticeChatFailed, snap.Notice)
	assert.NotEqual(t, NoticeAnalyzeFailed, snap.Notice)
}

func TestExtractWhileTurnInFlight(t *testing.T) {
	gate := make(chan struct{})
	s, _ := newTestSession(&scriptedCompleter{replies: []string{threeRowReply}, gate: gate}, nil)

	upload(t, s, "tale.txt")
	require.NoError(t, s.Extract(context.Background()))
	assert.Equal(t, Extracting.String(), s.Snapshot().State)
	assert.True(t, s.Snapshot().Busy)

	assert.ErrorIs(t, s.Extract(context.Background()), ErrBusy)
	assert.ErrorIs(t, s.GenerateStory(context.Background()), ErrBusy)
	_, err := s.Chat(context.Background(), "hello?")
	assert.ErrorIs(t, err, ErrBusy)

	close(gate)
	s.Wait()
	assert.Equal(t, Extracted.String(), s.Snapshot().State)
}

func TestReplyForRemovedFileIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	s, _ := newTestSession(&scriptedCompleter{replies: []string{threeRowReply}, gate: gate}, nil)

	upload(t, s, "tale.txt")
	require.NoError(t, s.Extract(context.Background()))
	require.NoError(t, s.RemoveFile())
	upload(t, s, "second.txt")

	close(gate)
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, FileUploaded.String(), snap.State)
	assert.Empty(t, snap.Characters)
}

func TestChatReplyWithTableUpdatesAnalysis(t *testing.T) {
	s, _ := newTestSession(&scriptedCompleter{replies: []string{threeRowReply}}, nil)

	upload(t, s, "tale.txt")
	_, err := s.Chat(context.Background(), "who lives in the village?")
	require.NoError(t, err)
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, Extracted.String(), snap.State)
	assert.Len(t, snap.Characters, 3)
}

func TestGenerateStoryPreconditions(t *testing.T) {
	s, _ := newTestSession(
		&scriptedCompleter{replies: []string{threeRowReply}},
		generatorFunc(func(ctx context.Context, p string) (string, error) {
			return "The hero arrived.", nil
		}),
	)

	assert.ErrorIs(t, s.GenerateStory(context.Background()), ErrNoAnalysis)

	upload(t, s, "tale.txt")
	assert.ErrorIs(t, s.GenerateStory(context.Background()), ErrNoAnalysis)

	extract(t, s)
	require.NoError(t, s.GenerateStory(context.Background()))
	assert.ErrorIs(t, s.GenerateStory(context.Background()), ErrStoryExists)
	assert.Equal(t, []string{"hero arrived."}, s.Snapshot().Paragraphs)
}

func TestGenerateStoryFailureRevertsSilently(t *testing.T) {
	s, _ := newTestSession(
		&scriptedCompleter{replies: []string{threeRowReply}},
		generatorFunc(func(ctx context.Context, p string) (string, error) {
			return "", errors.New("status 500")
		}),
	)

	upload(t, s, "tale.txt")
	extract(t, s)

	err := s.GenerateStory(context.Background())
	assert.ErrorIs(t, err, story.ErrGenerationFailed)

	snap := s.Snapshot()
	assert.Equal(t, Extracted.String(), snap.State)
	assert.Empty(t, snap.Story)
	assert.Empty(t, snap.Notice)
	assert.Len(t, snap.Characters, 3)
}

func TestGenerateStoryEmptyResult(t *testing.T) {
	s, _ := newTestSession(
		&scriptedCompleter{replies: []string{threeRowReply}},
		generatorFunc(func(ctx context.Context, p string) (string, error) {
			return "  \n\n ", nil
		}),
	)

	upload(t, s, "tale.txt")
	extract(t, s)

	assert.ErrorIs(t, s.GenerateStory(context.Background()), story.ErrGenerationFailed)
	assert.Equal(t, Extracted.String(), s.Snapshot().State)
}

func TestReExtractClearsStory(t *testing.T) {
	s, _ := newTestSession(
		&scriptedCompleter{replies: []string{threeRowReply, threeRowReply}},
		generatorFunc(func(ctx context.Context, p string) (string, error) {
			return "A tale.", nil
		}),
	)

	upload(t, s, "tale.txt")
	extract(t, s)
	require.NoError(t, s.GenerateStory(context.Background()))
	require.NotEmpty(t, s.Snapshot().Story)

	extract(t, s)
	snap := s.Snapshot()
	assert.Equal(t, Extracted.String(), snap.State)
	assert.Empty(t, snap.Story)
}

func TestManagerEvictionRemovesDocument(t *testing.T) {
	docs := newFakeDocs()
	m := NewManager(time.Hour, docs, &scriptedCompleter{}, story.NewRequester(nil))

	s := m.Create()
	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Count())

	upload(t, s, "tale.txt")
	require.Len(t, docs.files, 1)

	require.NoError(t, m.Delete(s.ID))
	assert.Empty(t, docs.files)
	assert.Len(t, docs.removed, 1)

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Delete(s.ID), ErrSessionNotFound)
}

func TestManagerExpiredSessionIsGone(t *testing.T) {
	docs := newFakeDocs()
	m := NewManager(50*time.Millisecond, docs, &scriptedCompleter{}, story.NewRequester(nil))

	s := m.Create()
	upload(t, s, "tale.txt")

	time.Sleep(80 * time.Millisecond)
	_, err := m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// janitor закрывает сессию, и Get не возвращает её в кэш
	require.Eventually(t, func() bool {
		docs.mu.Lock()
		defer docs.mu.Unlock()
		return len(docs.files) == 0
	}, time.Second, 10*time.Millisecond)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, m.Count())
}

func TestManagerGetExtendsTTL(t *testing.T) {
	m := NewManager(200*time.Millisecond, newFakeDocs(), &scriptedCompleter{}, story.NewRequester(nil))

	s := m.Create()
	time.Sleep(120 * time.Millisecond)
	_, err := m.Get(s.ID)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestManagerCloseRemovesDocuments(t *testing.T) {
	docs := newFakeDocs()
	m := NewManager(time.Hour, docs, &scriptedCompleter{}, story.NewRequester(nil))

	upload(t, m.Create(), "first.txt")
	upload(t, m.Create(), "second.txt")
	m.Create()
	require.Len(t, docs.files, 2)

	assert.Equal(t, 3, m.Close())
	assert.Empty(t, docs.files)
	assert.Len(t, docs.removed, 2)
	assert.Zero(t, m.Count())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "generating_story", GeneratingStory.String())
	assert.Equal(t, "unknown", State(42).String())
}
