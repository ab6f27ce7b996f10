package docs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText reads a source document and returns its plain text. The file
// type is determined by extension: PDFs go through the PDF text extractor,
// everything else is read as UTF-8 text. Word documents are handled
// best-effort as text; binary noise is tolerated because chunking drops
// fragments that carry no usable content.
func ExtractText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		return string(data), nil
	}
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var buf bytes.Buffer
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", filepath.Base(path), err)
	}
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("reading text from %s: %w", filepath.Base(path), err)
	}
	return buf.String(), nil
}

// ListSupported returns the files in dir whose extensions are in exts, in
// lexical order. A missing directory yields an empty list, not an error;
// domains without documents simply produce empty indexes.
func ListSupported(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading document directory %s: %w", dir, err)
	}

	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if allowed[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
