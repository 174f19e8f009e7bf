package domain

import (
	"path/filepath"
	"strings"
)

// Format is a supported source file type.
type Format string

const (
	FormatUnknown Format = ""
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatDOC     Format = "doc"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeDOC  = "application/msword"
)

// PageBreakMarker separates OCR batches in extracted text.
const PageBreakMarker = "\n\n--- page break ---\n\n"

// MaxExtractionChars bounds the text sent to field extraction.
const MaxExtractionChars = 15000

var mimeFormats = map[string]Format{
	MimePDF:  FormatPDF,
	MimeDOCX: FormatDOCX,
	MimeDOC:  FormatDOC,
}

var extFormats = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".doc":  FormatDOC,
}

// FormatFor maps a declared MIME type, falling back to the file extension.
func FormatFor(mimeType, filename string) Format {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if f, ok := mimeFormats[mt]; ok {
		return f
	}
	return extFormats[strings.ToLower(filepath.Ext(filename))]
}

func (f Format) MimeType() string {
	switch f {
	case FormatPDF:
		return MimePDF
	case FormatDOCX:
		return MimeDOCX
	case FormatDOC:
		return MimeDOC
	default:
		return "application/octet-stream"
	}
}

// TruncateRunes cuts s to at most limit characters.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
