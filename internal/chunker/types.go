package chunker

// Chunk - фрагмент загруженного документа для векторного индекса
type Chunk struct {
	ID       string            // sha256(text+source), первые 8 байт
	Text     string            // Текст фрагмента
	Source   string            // Handle загрузки
	Section  string            // Глава или номер части
	Metadata map[string]string // Дополнительные метаданные для chromem
}

// Chunker - интерфейс для всех типов chunker'ов
type Chunker interface {
	// Chunk разбивает контент на фрагменты
	Chunk(content, source string) ([]Chunk, error)

	// Name возвращает название chunker'а для логирования
	Name() string
}

// Config содержит общие параметры для chunker'ов
type Config struct {
	MaxChunkSize int // Максимальный размер фрагмента в символах
	Overlap      int // Размер overlap между фрагментами
}
