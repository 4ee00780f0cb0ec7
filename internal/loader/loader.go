// Package loader reads source documents from disk.
package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"recipechat/internal/domain"
)

// TextLoader loads plain text documents (.txt, .md).
type TextLoader struct{}

// Load reads a text document from the given path.
func (TextLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	return newDocument(path, string(data), nil), nil
}

// PDFLoader extracts plain text from PDF files page by page.
type PDFLoader struct{}

// Load reads a PDF document. Pages without a text layer come back empty.
func (PDFLoader) Load(ctx context.Context, path string) (doc domain.Document, err error) {
	defer func() {
		// the pdf reader panics on some malformed files
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return domain.Document{}, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return domain.Document{}, fmt.Errorf("read page %d of %s: %w", i, path, err)
		}
		pages = append(pages, text)
	}
	return newDocument(path, strings.Join(pages, "\n"), pages), nil
}

// MultiLoader dispatches on file extension.
type MultiLoader struct {
	loaders map[string]domain.DocumentLoader
}

// NewMultiLoader creates a loader that handles PDF and text files.
func NewMultiLoader() *MultiLoader {
	return &MultiLoader{
		loaders: map[string]domain.DocumentLoader{
			".pdf":      PDFLoader{},
			".txt":      TextLoader{},
			".md":       TextLoader{},
			".markdown": TextLoader{},
		},
	}
}

// Load dispatches to the loader registered for the file extension.
func (m *MultiLoader) Load(ctx context.Context, path string) (domain.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := m.loaders[ext]
	if !ok {
		return domain.Document{}, fmt.Errorf("unsupported document type %q: %s", ext, path)
	}
	return l.Load(ctx, path)
}

func newDocument(path, content string, pages []string) domain.Document {
	return domain.Document{
		ID:      hashString(path),
		Path:    path,
		Name:    filepath.Base(path),
		Content: content,
		Pages:   pages,
	}
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
