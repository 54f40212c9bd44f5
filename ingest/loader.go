package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"studybuddy/types"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrNoContent means nothing extractable was found across all uploads.
var ErrNoContent = errors.New("ingest: no extractable content in uploaded documents")

// File is one uploaded document before extraction.
type File struct {
	Name string
	Data []byte
}

// Result is the merged outcome of one ingestion run.
type Result struct {
	Documents []types.Document
	Pages     []types.Page
	Skipped   []string // file names that failed to parse
	Summary   types.CorpusSummary
}

// Loader turns uploaded files into ordered page-level text records.
// PDF pages go through the external conversion service; plain text and
// markdown pass through as a single page.
type Loader struct {
	parser *ParserClient
	logger *slog.Logger
}

func NewLoader(parser *ParserClient) *Loader {
	return &Loader{
		parser: parser,
		logger: slog.Default(),
	}
}

// Ingest extracts pages from every file. A file that fails to parse is
// recorded in Skipped and the rest continue; an empty merged page set
// fails with ErrNoContent. Temporary files are removed before return.
func (l *Loader) Ingest(ctx context.Context, files []File) (*Result, error) {
	res := &Result{}
	for _, f := range files {
		doc, err := l.ingestOne(ctx, f)
		if err != nil {
			l.logger.Warn("document skipped", "file", f.Name, "error", err)
			res.Skipped = append(res.Skipped, f.Name)
			continue
		}
		res.Documents = append(res.Documents, *doc)
		res.Pages = append(res.Pages, doc.Pages...)
	}
	if len(res.Pages) == 0 {
		return nil, ErrNoContent
	}
	res.Summary = summarize(res.Documents, res.Pages)
	return res, nil
}

func (l *Loader) ingestOne(ctx context.Context, f File) (*types.Document, error) {
	doc := &types.Document{
		ID:        uuid.New(),
		Name:      f.Name,
		CreatedAt: time.Now(),
	}

	var texts []string
	var err error
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".pdf":
		texts, err = l.extractPDFPages(ctx, f)
	case ".txt", ".md":
		texts = []string{string(f.Data)}
	default:
		err = fmt.Errorf("unsupported file type: %s", f.Name)
	}
	if err != nil {
		return nil, err
	}

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc.Pages = append(doc.Pages, types.Page{
			DocID:   doc.ID,
			DocName: doc.Name,
			Number:  i + 1,
			Content: text,
		})
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("no text content in %s", f.Name)
	}
	return doc, nil
}

// extractPDFPages splits the PDF into single-page files with pdfcpu and
// converts each page through the parser service, keeping page order.
func (l *Loader) extractPDFPages(ctx context.Context, f File) ([]string, error) {
	if l.parser == nil {
		return nil, errors.New("no document parser configured")
	}

	tmpDir, err := os.MkdirTemp("", "ingest-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	src := filepath.Join(tmpDir, "upload.pdf")
	if err := os.WriteFile(src, f.Data, 0o644); err != nil {
		return nil, err
	}
	if err := api.ValidateFile(src, nil); err != nil {
		return nil, fmt.Errorf("invalid pdf %s: %w", f.Name, err)
	}

	pagesDir := filepath.Join(tmpDir, "pages")
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		return nil, err
	}
	// one output file per page: upload_1.pdf, upload_2.pdf, ...
	if err := api.SplitFile(src, pagesDir, 1, nil); err != nil {
		return nil, fmt.Errorf("split pdf %s: %w", f.Name, err)
	}

	pageFiles, err := sortedPageFiles(pagesDir)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(pageFiles))
	for _, p := range pageFiles {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		text, err := l.parser.Convert(ctx, filepath.Base(p), data)
		if err != nil {
			return nil, fmt.Errorf("convert page %s: %w", filepath.Base(p), err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

// sortedPageFiles orders pdfcpu's split output by page number, not
// lexically (upload_10.pdf would otherwise sort before upload_2.pdf).
func sortedPageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".pdf") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		return pageNumber(paths[i]) < pageNumber(paths[j])
	})
	return paths, nil
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".pdf")
	i := strings.LastIndex(base, "_")
	if i < 0 {
		return 0
	}
	n := 0
	for _, r := range base[i+1:] {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// summarize builds the human-readable corpus description used in the
// prompt and the greeting: document count, page count and a short
// sample from the first pages.
func summarize(docs []types.Document, pages []types.Page) types.CorpusSummary {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}

	var samples []string
	for _, p := range pages {
		if len(samples) >= 2 {
			break
		}
		sample := p.Content
		if len(sample) > 100 {
			sample = sample[:100]
		}
		sample = strings.TrimSpace(strings.ReplaceAll(sample, "\n", " "))
		if sample != "" {
			samples = append(samples, sample+"...")
		}
	}

	return types.CorpusSummary{
		DocumentNames: names,
		PageCount:     len(pages),
		Sample:        strings.Join(samples, " "),
	}
}

// Describe renders the summary the way it is fed to the model.
func Describe(s types.CorpusSummary) string {
	out := fmt.Sprintf("I've processed %d pages from %d document(s): %s.",
		s.PageCount, len(s.DocumentNames), strings.Join(s.DocumentNames, ", "))
	if s.Sample != "" {
		out += "\n\nSample content includes: " + s.Sample
	}
	return out
}
