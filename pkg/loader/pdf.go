package loader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	pdf "github.com/dslipak/pdf"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

func loadPDF(ctx context.Context, path string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, wrapSource("open pdf "+path, err)
	}
	if info.IsDir() {
		return nil, sourceError("%s is a directory", path)
	}

	text, err := extractTextFromPDF(path)
	if err != nil {
		return nil, wrapSource("read pdf "+path, err)
	}
	if text == "" {
		return nil, sourceError("no text extracted from %s", path)
	}

	return []rag.Document{{
		Content: text,
		Source:  path,
		Title:   filenameToTitle(path),
		Metadata: map[string]string{
			"source": path,
		},
	}}, nil
}

// pdf.Open nunca fecha o arquivo, então abrimos e fechamos aqui
func extractTextFromPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	r, err := pdf.NewReader(f, fi.Size())
	if err != nil {
		return "", err
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}

	buf := bytes.NewBuffer(nil)
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	return cleanText(buf.String()), nil
}

func filenameToTitle(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "-", " ")
	base = strings.ReplaceAll(base, "_", " ")
	return strings.TrimSpace(base)
}
