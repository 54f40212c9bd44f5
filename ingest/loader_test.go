package ingest

import (
	"context"
	"strings"
	"testing"

	"studybuddy/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestPlainText(t *testing.T) {
	l := NewLoader(nil)

	res, err := l.Ingest(context.Background(), []File{
		{Name: "biology-notes.txt", Data: []byte("The cell is the basic unit of life.")},
	})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	require.Len(t, res.Pages, 1)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, "biology-notes.txt", res.Pages[0].DocName)
	assert.Equal(t, 1, res.Pages[0].Number)
	assert.Equal(t, "The cell is the basic unit of life.", res.Pages[0].Content)
}

func TestIngestMarkdown(t *testing.T) {
	l := NewLoader(nil)

	res, err := l.Ingest(context.Background(), []File{
		{Name: "outline.md", Data: []byte("# Photosynthesis\n\nPlants convert light into energy.")},
	})
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	assert.Contains(t, res.Pages[0].Content, "Photosynthesis")
}

func TestIngestSkipsUnsupportedAndKeepsRest(t *testing.T) {
	l := NewLoader(nil)

	res, err := l.Ingest(context.Background(), []File{
		{Name: "slides.pptx", Data: []byte("binary")},
		{Name: "notes.txt", Data: []byte("usable content")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"slides.pptx"}, res.Skipped)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "notes.txt", res.Documents[0].Name)
}

func TestIngestEmptyCorpusFails(t *testing.T) {
	l := NewLoader(nil)

	_, err := l.Ingest(context.Background(), []File{
		{Name: "blank.txt", Data: []byte("   \n  ")},
	})
	require.ErrorIs(t, err, ErrNoContent)

	_, err = l.Ingest(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoContent)
}

func TestIngestPDFWithoutParser(t *testing.T) {
	l := NewLoader(nil)

	res, err := l.Ingest(context.Background(), []File{
		{Name: "textbook.pdf", Data: []byte("%PDF-1.4 not really")},
		{Name: "notes.txt", Data: []byte("fallback content")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"textbook.pdf"}, res.Skipped)
	require.Len(t, res.Pages, 1)
}

func TestSummarize(t *testing.T) {
	l := NewLoader(nil)

	long := strings.Repeat("photosynthesis is the process by which plants convert light ", 5)
	res, err := l.Ingest(context.Background(), []File{
		{Name: "a.txt", Data: []byte(long)},
		{Name: "b.txt", Data: []byte("short page")},
	})
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, []string{"a.txt", "b.txt"}, s.DocumentNames)
	assert.Equal(t, 2, s.PageCount)
	assert.Contains(t, s.Sample, "photosynthesis")
	assert.Contains(t, s.Sample, "...")

	desc := Describe(s)
	assert.Contains(t, desc, "I've processed 2 pages from 2 document(s): a.txt, b.txt.")
	assert.Contains(t, desc, "Sample content includes:")
}

func TestDescribeWithoutSample(t *testing.T) {
	desc := Describe(types.CorpusSummary{DocumentNames: []string{"a.txt"}, PageCount: 3})
	assert.Equal(t, "I've processed 3 pages from 1 document(s): a.txt.", desc)
	assert.NotContains(t, desc, "Sample content")
}
