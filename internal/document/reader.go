package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyDocument     = errors.New("document contains no text")
)

// Extensions - расширения, которые принимает загрузка
var Extensions = []string{".txt", ".md", ".pdf", ".doc", ".docx"}

// Supported проверяет расширение имени файла
func Supported(fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// ReadText достаёт plain text из загруженного файла по его расширению
func ReadText(fileName string, data []byte) (string, error) {
	var (
		content string
		err     error
	)

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".md":
		content = string(bytes.ToValidUTF8(data, []byte("�")))
	case ".pdf":
		content, err = readPDF(data)
	case ".docx":
		content, err = readDocx(data)
	case ".doc":
		content = readLegacyDoc(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
	if err != nil {
		return "", err
	}

	content = strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
	if content == "" {
		return "", ErrEmptyDocument
	}
	return content, nil
}

func readPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}

// readLegacyDoc вытаскивает из бинарного .doc печатные последовательности длиной от 4 символов
func readLegacyDoc(data []byte) string {
	const minRun = 4

	var out, run strings.Builder
	runLen := 0
	flush := func() {
		if text := strings.TrimSpace(run.String()); runLen >= minRun && text != "" {
			if out.Len() > 0 {
				out.WriteString("\n")
			}
			out.WriteString(text)
		}
		run.Reset()
		runLen = 0
	}

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r != utf8.RuneError && (unicode.IsPrint(r) || r == '\t') {
			run.WriteRune(r)
			runLen++
			continue
		}
		flush()
	}
	flush()

	return out.String()
}
