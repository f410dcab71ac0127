// Package parse turns raw uploads into page-tagged text and splits that text into chunks.
package parse

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"docrag/internal/models"
)

// Fragment is an ordered piece of extracted text tagged with its 1-based page.
type Fragment struct {
	Page int
	Text string
}

// Kind identifies a supported upload format.
type Kind string

const (
	KindPDF      Kind = "pdf"
	KindMarkdown Kind = "markdown"
)

var pdfMagic = []byte("%PDF")

// Detect checks the extension and content of an upload and returns its kind.
func Detect(filename string, content []byte) (Kind, error) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		if !bytes.HasPrefix(content, pdfMagic) {
			return "", fmt.Errorf("%w: invalid PDF file content", models.ErrInvalidUpload)
		}
		return KindPDF, nil
	case ".md", ".markdown":
		if bytes.IndexByte(content, 0) >= 0 {
			return "", fmt.Errorf("%w: markdown file contains binary data", models.ErrInvalidUpload)
		}
		return KindMarkdown, nil
	}
	return "", fmt.Errorf("%w: only PDF and Markdown files are allowed", models.ErrInvalidUpload)
}

// Fragments extracts page-tagged text. An upload with no extractable text is
// models.ErrUnparseableDocument.
func Fragments(filename string, content []byte) ([]Fragment, error) {
	kind, err := Detect(filename, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnparseableDocument, err)
	}
	var frags []Fragment
	switch kind {
	case KindPDF:
		frags, err = PDFPages(content)
	case KindMarkdown:
		frags = MarkdownSections(content)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnparseableDocument, err)
	}
	if len(frags) == 0 {
		return nil, fmt.Errorf("%w: no text extracted", models.ErrUnparseableDocument)
	}
	return frags, nil
}
