// Package extract turns document bytes into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"ragcore/internal/port"
)

// ErrUnsupportedFormat is returned for file extensions without an extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

var (
	_ port.Extractor = PlainTextExtractor{}
	_ port.Extractor = PDFExtractor{}
	_ port.Extractor = (*Registry)(nil)
)

// PlainTextExtractor returns the bytes as text, replacing invalid UTF-8.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(name string, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// PDFExtractor extracts the text layer of a PDF.
type PDFExtractor struct{}

func (PDFExtractor) Extract(name string, data []byte) (text string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf %s: %v", name, r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf %s: %w", name, err)
	}

	b, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text %s: %w", name, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("failed to read pdf buffer %s: %w", name, err)
	}
	return strings.ToValidUTF8(buf.String(), "�"), nil
}

// Registry selects an extractor by lower-cased file extension.
type Registry struct {
	byExt map[string]port.Extractor
}

func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]port.Extractor)}
	text := PlainTextExtractor{}
	for _, ext := range []string{".txt", ".md", ".markdown", ".rst", ".csv", ".json", ".yaml", ".yml", ".html", ".htm", ".log", ""} {
		r.Register(ext, text)
	}
	r.Register(".pdf", PDFExtractor{})
	return r
}

func (r *Registry) Register(ext string, e port.Extractor) {
	r.byExt[strings.ToLower(ext)] = e
}

// Supports reports whether name has a registered extension.
func (r *Registry) Supports(name string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

func (r *Registry) Extract(name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	e, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return e.Extract(name, data)
}
