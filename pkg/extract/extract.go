// Package extract pulls plain text out of claim attachments so the
// conversation context and specialist agents can reason over them. Extraction
// is best effort per file: a corrupt document yields an error for that file
// only, never for the batch.
package extract

import (
	"bytes"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/pkg/errors"
)

var (
	xmlTag   = regexp.MustCompile(`<[^>]+>`)
	spaceRun = regexp.MustCompile(`[ \t]+`)
)

// plain-text formats passed through verbatim
var textualExt = map[string]bool{
	".txt":  true,
	".csv":  true,
	".json": true,
	".xml":  true,
	".rtf":  true,
}

var imageExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".webp": true,
}

// IsImage reports whether the filename names an image format. Images carry no
// extractable text; they are described by the vision model instead.
func IsImage(filename string) bool {
	return imageExt[strings.ToLower(filepath.Ext(filename))]
}

// Text extracts the textual content of an attachment. Unsupported formats
// return an empty string with no error; malformed documents of a supported
// format return an error.
func Text(filename string, data []byte) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); {
	case ext == ".pdf":
		return pdfText(data)
	case ext == ".docx":
		return docxText(data)
	case textualExt[ext]:
		return string(data), nil
	default:
		return "", nil
	}
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse pdf")
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse docx")
	}
	defer doc.Close()

	// GetContent returns the raw document XML
	content := doc.Editable().GetContent()
	content = xmlTag.ReplaceAllString(content, " ")
	content = html.UnescapeString(content)
	return strings.TrimSpace(spaceRun.ReplaceAllString(content, " ")), nil
}
