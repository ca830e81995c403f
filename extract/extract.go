// Package extract pulls plain text out of uploaded or local documents.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/poiesic/recall/core"
)

// Document types recorded in chunk metadata.
const (
	TypePDF  = "pdf"
	TypeText = "text"
)

var textExtensions = map[string]bool{
	"":          true,
	".txt":      true,
	".md":       true,
	".markdown": true,
	".text":     true,
}

// IsPDF reports whether name carries a .pdf extension, in any case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// PDF returns the trimmed text of every page, in page order. Pages without
// text yield empty strings so the result length is the page count.
func PDF(r io.ReaderAt, size int64) (pages []string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrExtraction, rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	pages = make([]string, reader.NumPage())
	for i := range pages {
		page := reader.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", ErrExtraction, i+1, err)
		}
		pages[i] = strings.TrimSpace(text)
	}
	return pages, nil
}

// PDFFile extracts the pages of the PDF at path.
func PDFFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return PDF(f, info.Size())
}

// File extracts the texts of a local file and describes it as an ingestion
// source. PDFs yield one text per page; plain text files yield one text.
func File(path string) ([]string, core.SourceMetadata, error) {
	meta := core.SourceMetadata{Source: filepath.Base(path)}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		pages, err := PDFFile(path)
		if err != nil {
			return nil, meta, err
		}
		meta.Type = TypePDF
		meta.Pages = len(pages)
		return pages, meta, nil
	case textExtensions[ext]:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, meta, err
		}
		if !utf8.Valid(data) {
			return nil, meta, fmt.Errorf("%w: %s is not UTF-8 text", ErrExtraction, meta.Source)
		}
		meta.Type = TypeText
		return []string{string(bytes.TrimPrefix(data, []byte("\ufeff")))}, meta, nil
	default:
		return nil, meta, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
}
