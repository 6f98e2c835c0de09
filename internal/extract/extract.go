// Package extract turns uploaded files into plain text for the tasks.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	TypeText = "text/plain"
	TypePDF  = "application/pdf"
)

// ErrUnsupportedType is returned for anything but plain text and PDF.
var ErrUnsupportedType = errors.New("unsupported file type (only PDF and TXT allowed)")

// DetectType resolves the content type from the declared header, falling
// back to the filename extension when the header is missing.
func DetectType(filename, declared string) (string, error) {
	if declared != "" {
		mediaType, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return "", ErrUnsupportedType
		}
		switch mediaType {
		case TypeText, TypePDF:
			return mediaType, nil
		case "application/octet-stream":
		default:
			return "", ErrUnsupportedType
		}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return TypeText, nil
	case ".pdf":
		return TypePDF, nil
	default:
		return "", ErrUnsupportedType
	}
}

// Text extracts plain text from content of the given type.
func Text(contentType string, content []byte) (string, error) {
	switch contentType {
	case TypeText:
		if !utf8.Valid(content) {
			return "", fmt.Errorf("text file is not valid UTF-8")
		}
		return string(content), nil
	case TypePDF:
		return PDF(content)
	default:
		return "", ErrUnsupportedType
	}
}

// PDF returns the text of every page that has content, one page per line block.
func PDF(content []byte) (string, error) {
	reader := bytes.NewReader(content)
	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var textBuilder strings.Builder
	numPages := pdfReader.NumPage()

	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	return strings.TrimSpace(textBuilder.String()), nil
}
