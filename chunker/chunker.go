package chunker

import (
	"errors"
	"strings"
	"unicode/utf8"

	"studybuddy/types"

	"github.com/google/uuid"
)

// ErrInvalidParams reports an unusable size/overlap configuration.
var ErrInvalidParams = errors.New("chunker: chunk size must be positive and overlap smaller than size")

// Splitter cuts page text into bounded, overlapping chunks. Boundaries
// prefer natural separators over hard character cuts.
type Splitter struct {
	Size    int
	Overlap int
}

func New(size, overlap int) (*Splitter, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidParams
	}
	return &Splitter{Size: size, Overlap: overlap}, nil
}

// separators in preference order, tried within the tail of an oversized
// window before falling back to a hard cut.
var separators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// Split produces the chunk sequence for the given pages. Same input and
// parameters always yield the same chunks. Consecutive chunks from the
// same page share Overlap characters; no overlap crosses a page.
func (s *Splitter) Split(pages []types.Page) []types.Chunk {
	var chunks []types.Chunk
	index := 0
	for _, page := range pages {
		for _, content := range s.splitText(page.Content) {
			chunks = append(chunks, types.Chunk{
				ID:      deterministicID(page.DocID, index),
				DocID:   page.DocID,
				DocName: page.DocName,
				Page:    page.Number,
				Index:   index,
				Content: content,
			})
			index++
		}
	}
	return chunks
}

func (s *Splitter) splitText(text string) []string {
	var parts []string
	start := 0
	for start < len(text) {
		end := start + s.Size
		if end >= len(text) {
			part := strings.TrimSpace(text[start:])
			if part != "" {
				parts = append(parts, part)
			}
			break
		}
		end = runeStart(text, end)
		if end <= start {
			// a single rune wider than Size still has to make progress
			_, n := utf8.DecodeRuneInString(text[start:])
			end = start + n
		}
		end = cutAt(text, start, end)
		part := strings.TrimSpace(text[start:end])
		if part != "" {
			parts = append(parts, part)
		}
		next := runeStart(text, end-s.Overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return parts
}

// cutAt moves the window end back to the nearest natural separator
// found in the last fifth of the window. A window with no separator at
// all is cut hard at end.
func cutAt(text string, start, end int) int {
	window := text[start:end]
	floor := len(window) - len(window)/5
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= floor {
			return start + i + len(sep)
		}
	}
	return end
}

// runeStart moves i back to the nearest rune boundary so byte-offset
// cuts never land inside a multi-byte character.
func runeStart(text string, i int) int {
	if i < 0 {
		return 0
	}
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// deterministicID derives the chunk id from its document and position,
// so re-splitting the same corpus yields the same ids.
func deterministicID(docID uuid.UUID, index int) uuid.UUID {
	name := []byte(docID.String())
	name = append(name, byte(index>>24), byte(index>>16), byte(index>>8), byte(index))
	return uuid.NewSHA1(docID, name)
}
