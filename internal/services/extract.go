package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractService pulls text out of uploaded note PDFs. It reads the
// embedded text layer first; rasterization via pdftoppm is the fallback
// path for scanned or handwritten notes, whose pages then go through OCR.
type PDFExtractService struct {
	pdftoppmPath string
}

func NewPDFExtractService(pdftoppmPath string) *PDFExtractService {
	if pdftoppmPath == "" {
		pdftoppmPath = "pdftoppm"
	}
	return &PDFExtractService{pdftoppmPath: pdftoppmPath}
}

// ExtractTextLayer returns the embedded text of each page, in page order.
// Pages without a text layer come back as empty strings so the caller can
// decide whether the document needs OCR.
func (s *PDFExtractService) ExtractTextLayer(path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	totalPage := reader.NumPage()
	if totalPage == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	pages := make([]string, totalPage)
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[pageIndex-1] = normalizeExtractedText(content)
	}

	return pages, nil
}

// HasTextLayer reports whether any page carries extractable text.
func HasTextLayer(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

// RasterizePages renders every page of the PDF to a PNG and returns the
// image bytes in page order. Rendering happens in a throwaway temp dir that
// is removed before returning.
func (s *PDFExtractService) RasterizePages(ctx context.Context, path string) ([][]byte, error) {
	tmpDir, err := os.MkdirTemp("", "note-pages-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, s.pdftoppmPath, "-png", "-r", "150", path, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, err
	}

	// pdftoppm names output page-1.png, page-2.png, ... page-10.png; sort
	// numerically so page 10 does not land before page 2.
	type renderedPage struct {
		num  int
		name string
	}
	var rendered []renderedPage
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "page-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png"))
		if err != nil {
			continue
		}
		rendered = append(rendered, renderedPage{num: num, name: name})
	}
	if len(rendered) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}
	sort.Slice(rendered, func(i, j int) bool { return rendered[i].num < rendered[j].num })

	images := make([][]byte, 0, len(rendered))
	for _, p := range rendered {
		b, err := os.ReadFile(filepath.Join(tmpDir, p.name))
		if err != nil {
			return nil, err
		}
		images = append(images, b)
	}

	return images, nil
}

func normalizeExtractedText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	buf := bytes.Buffer{}

	emptyCount := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			emptyCount++
			if emptyCount > 1 {
				continue
			}
			buf.WriteString("\n")
			continue
		}
		emptyCount = 0
		buf.WriteString(trimmed)
		buf.WriteString("\n")
	}

	return strings.TrimSpace(buf.String())
}
