// Package document extracts plain text from uploaded CVs.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	MIMEText = "text/plain"
	MIMEPDF  = "application/pdf"
	MIMEDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// MaxUploadBytes bounds the size of an uploaded CV.
const MaxUploadBytes = 10 << 20

var (
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrNoText          = errors.New("document contains no extractable text")
	ErrTooLarge        = errors.New("document too large")
)

// DetectMIME picks the MIME type from the declared content type, falling back
// to the file extension.
func DetectMIME(fileName, declared string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			switch mt {
			case MIMEText, MIMEPDF, MIMEDocx:
				return mt
			}
		}
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return MIMEPDF
	case ".docx":
		return MIMEDocx
	case ".txt", ".md":
		return MIMEText
	}
	return ""
}

// ExtractText returns the normalised text of data.
func ExtractText(mimeType string, data []byte) (string, error) {
	if len(data) > MaxUploadBytes {
		return "", ErrTooLarge
	}
	var (
		text string
		err  error
	)
	switch mimeType {
	case MIMEText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("document: text is not utf-8: %w", ErrUnsupportedType)
		}
		text = string(data)
	case MIMEPDF:
		text, err = extractPDF(data)
	case MIMEDocx:
		text, err = extractDocx(data)
	default:
		return "", fmt.Errorf("document: %q: %w", mimeType, ErrUnsupportedType)
	}
	if err != nil {
		return "", err
	}
	text = Normalize(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func extractPDF(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("document: read pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("document: read pdf: %w", err)
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(t)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

var (
	paragraphEnd = regexp.MustCompile(`</w:p>`)
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
)

func extractDocx(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("document: parse docx: %w", err)
	}
	defer doc.Close()
	return docxText(doc.Editable().GetContent()), nil
}

// docxText turns the document.xml body into text, one paragraph per line.
func docxText(raw string) string {
	raw = paragraphEnd.ReplaceAllString(raw, "\n")
	return html.UnescapeString(xmlTag.ReplaceAllString(raw, ""))
}

var blankRun = regexp.MustCompile(`\n{3,}`)

// Normalize trims trailing spaces on every line and collapses runs of blank
// lines.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text = blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}
