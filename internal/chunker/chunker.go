package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"assistant/internal/domain"
)

// Splitter splits text into overlapping chunks bounded by a rune budget,
// preferring paragraph and sentence boundaries over hard cuts.
type Splitter struct {
	maxChunkSize int
	overlap      int
}

// New creates a splitter. maxChunkSize must be positive and overlap must be
// non-negative and strictly smaller than maxChunkSize.
func New(maxChunkSize, overlap int) (*Splitter, error) {
	if maxChunkSize <= 0 {
		return nil, domain.E(domain.KindInvalidConfiguration, fmt.Sprintf("max chunk size must be positive, got %d", maxChunkSize))
	}
	if overlap < 0 || overlap >= maxChunkSize {
		return nil, domain.E(domain.KindInvalidConfiguration, fmt.Sprintf("overlap must be in [0, %d), got %d", maxChunkSize, overlap))
	}
	return &Splitter{maxChunkSize: maxChunkSize, overlap: overlap}, nil
}

// Split cuts text into ordered chunks. Every chunk is an exact substring of
// the input and at most maxChunkSize runes long; each chunk after the first
// starts overlap runes before the end of its predecessor, so concatenating
// the first chunk with the remainder of every subsequent chunk reconstructs
// the input losslessly.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	start := 0
	for {
		end := start + s.maxChunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		cut := s.cutPoint(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - s.overlap
	}
}

// cutPoint finds where to end the chunk starting at start, given the hard
// limit end. It prefers, in order, a paragraph break, a sentence end, and
// any whitespace, scanning backward from the limit. The cut never moves
// before start+overlap+1 so the next chunk always advances.
func (s *Splitter) cutPoint(runes []rune, start, end int) int {
	min := start + s.overlap + 1
	if min > end {
		return end
	}
	para, sentence, space := -1, -1, -1
	for i := end - 1; i >= min; i-- {
		r := runes[i]
		if r == '\n' && i > 0 && runes[i-1] == '\n' && para < 0 {
			para = i + 1
			break
		}
		if sentence < 0 && isSentenceEnd(r) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			sentence = i + 1
		}
		if space < 0 && unicode.IsSpace(r) {
			space = i + 1
		}
	}
	switch {
	case para >= min:
		return para
	case sentence >= min:
		return sentence
	case space >= min:
		return space
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// DocumentChunker adapts Splitter to the domain Chunker contract, attaching
// stable identifiers and inherited metadata to every chunk.
type DocumentChunker struct {
	splitter *Splitter
}

// NewDocumentChunker creates a document chunker with the given rune budget
// and overlap.
func NewDocumentChunker(maxChunkSize, overlap int) (*DocumentChunker, error) {
	s, err := New(maxChunkSize, overlap)
	if err != nil {
		return nil, err
	}
	return &DocumentChunker{splitter: s}, nil
}

// Chunk splits the document text and derives chunk identifiers from the
// document id and position.
func (c *DocumentChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, domain.E(domain.KindInvalidInput, "document text is empty")
	}
	parts := c.splitter.Split(doc.Text)
	chunks := make([]domain.Chunk, 0, len(parts))
	for i, p := range parts {
		chunks = append(chunks, domain.Chunk{
			ID:         fmt.Sprintf("%s:%d", doc.ID, i),
			DocumentID: doc.ID,
			Index:      i,
			Text:       p,
			Source:     doc.Source,
			Category:   doc.Category,
			Metadata:   doc.Metadata,
		})
	}
	return chunks, nil
}

// Overlap returns the configured overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }
