package flow

import "errors"

// State - единственное значение состояния сессии вместо набора флагов
type State int

const (
	Idle State = iota
	FileUploaded
	Extracting
	Extracted
	GeneratingStory
	StoryReady
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FileUploaded:
		return "file_uploaded"
	case Extracting:
		return "extracting"
	case Extracted:
		return "extracted"
	case GeneratingStory:
		return "generating_story"
	case StoryReady:
		return "story_ready"
	default:
		return "unknown"
	}
}

// inFlight - состояния, в которых идёт сетевой вызов
func (s State) inFlight() bool {
	return s == Extracting || s == GeneratingStory
}

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrFileAlreadyPresent = errors.New("a file is already uploaded")
	ErrUnsupportedFile    = errors.New("unsupported file type")
	ErrNoFile             = errors.New("no file uploaded")
	ErrBusy               = errors.New("another operation is in progress")
	ErrNoAnalysis         = errors.New("no character analysis available")
	ErrStoryExists        = errors.New("story already generated")
)

// Уведомления, которые показываются пользователю
const (
	NoticeOneFile       = "You can only upload one file at a time."
	NoticeUploadFirst   = "Please upload a file first."
	NoticeUnsupported   = "Unsupported file type. Please upload a .txt, .pdf, .doc or .docx file."
	NoticeUploadFailed  = "Failed to upload file. Please try again."
	NoticeAnalyzeFailed = "Failed to analyze the file. Please try again."
	NoticeChatFailed    = "The assistant did not respond. Please try again."
)

// extractionPrompt - сообщение пользователя, запускающее извлечение персонажей
const extractionPrompt = `Please analyze the content of the uploaded file "%s" and extract all characters. ` +
	`For each character, provide their name, description, and personality traits. ` +
	`Format the response as a markdown table with columns: Name, Description, Personality. ` +
	`IMPORTANT: Only output the table, nothing else. Do not include any follow-up questions, additional text, or suggestions.`
