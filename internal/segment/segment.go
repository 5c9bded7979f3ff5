// Package segment splits extracted page text into overlapping windows
// sized for embedding.
package segment

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkTokens is the target window size.
	DefaultChunkTokens = 1000

	// DefaultOverlapTokens is the overlap between consecutive windows.
	DefaultOverlapTokens = 100
)

// Separators are tried in order; "" falls back to single UTF-8 characters.
var Separators = []string{"\n\n", "\n", " ", ""}

// LenFunc measures a string in tokens.
type LenFunc func(string) int

// Page is the extracted text of one 1-based page.
type Page struct {
	Number int
	Text   string
}

// Chunk is one window of page text.
type Chunk struct {
	Content    string
	PageNumber int
	Index      int // Position across the whole document, in output order
}

// Segmenter splits pages into chunks.
type Segmenter struct {
	ChunkSize int
	Overlap   int
	Len       LenFunc
}

// New returns a Segmenter with the given window sizes. A nil lenFunc uses
// ApproxTokens.
func New(chunkSize, overlap int, lenFunc LenFunc) *Segmenter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkTokens
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = min(DefaultOverlapTokens, chunkSize/10)
	}
	if lenFunc == nil {
		lenFunc = ApproxTokens
	}
	return &Segmenter{ChunkSize: chunkSize, Overlap: overlap, Len: lenFunc}
}

// Segment splits each non-blank page independently, preserving page order.
func (s *Segmenter) Segment(pages []Page) ([]Chunk, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.ChunkSize),
		textsplitter.WithChunkOverlap(s.Overlap),
		textsplitter.WithSeparators(Separators),
		textsplitter.WithLenFunc(s.Len),
	)

	var chunks []Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		parts, err := splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("split page %d: %w", page.Number, err)
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			chunks = append(chunks, Chunk{Content: part, PageNumber: page.Number, Index: len(chunks)})
		}
	}
	return chunks, nil
}

// ApproxTokens estimates tokens as one per four characters, rounded up.
func ApproxTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// TiktokenLen returns a cl100k_base token counter. The encoding is fetched
// once per process; callers fall back to ApproxTokens on error.
func TiktokenLen() (LenFunc, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encErr != nil {
		return nil, fmt.Errorf("load cl100k_base: %w", encErr)
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}, nil
}
