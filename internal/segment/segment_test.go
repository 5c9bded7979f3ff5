package segment

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// words counts space separated words as tokens.
func words(s string) int { return len(strings.Fields(s)) }

func TestSegment_DropsBlankPages(t *testing.T) {
	s := New(1000, 100, nil)

	chunks, err := s.Segment([]Page{
		{Number: 1, Text: "Revenue grew 10%"},
		{Number: 2, Text: "  \n\t "},
		{Number: 3, Text: "See chart below"},
	})

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 3, chunks[1].PageNumber)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestSegment_SingleToken(t *testing.T) {
	chunks, err := New(1000, 100, nil).Segment([]Page{{Number: 1, Text: "x"}})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "x", chunks[0].Content)
}

func TestSegment_EmptyDocument(t *testing.T) {
	chunks, err := New(1000, 100, nil).Segment(nil)

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSegment_WindowsAreBoundedAndOrdered(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("alpha beta gamma delta epsilon ")
	}
	s := New(50, 10, words)

	chunks, err := s.Segment([]Page{{Number: 1, Text: b.String()}, {Number: 2, Text: b.String()}})

	require.NoError(t, err)
	require.Greater(t, len(chunks), 4)
	last := 0
	for i, c := range chunks {
		assert.LessOrEqual(t, words(c.Content), 50, "chunk %d too long", i)
		assert.Equal(t, i, c.Index)
		assert.GreaterOrEqual(t, c.PageNumber, last, "page order")
		last = c.PageNumber
	}
}

func TestSegment_OverlapCarriesText(t *testing.T) {
	text := strings.Repeat("one two three four five six seven eight nine ten ", 10)

	chunks, err := New(20, 5, words).Segment([]Page{{Number: 1, Text: text}})

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	first := strings.Fields(chunks[0].Content)
	second := strings.Fields(chunks[1].Content)
	tail := first[len(first)-1]
	assert.Contains(t, second[:5], tail, "second window starts inside the first one's tail")
}

func TestSegment_NeverSplitsMultiByte(t *testing.T) {
	text := strings.Repeat("收入增长", 100)
	runeLen := func(s string) int { return utf8.RuneCountInString(s) }

	chunks, err := New(30, 0, runeLen).Segment([]Page{{Number: 1, Text: text}})

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		if !utf8.ValidString(c.Content) {
			t.Errorf("invalid UTF-8 in chunk %q", c.Content)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(0, -1, nil)
	if s.ChunkSize != DefaultChunkTokens {
		t.Errorf("ChunkSize = %d, want %d", s.ChunkSize, DefaultChunkTokens)
	}
	if s.Overlap != DefaultOverlapTokens {
		t.Errorf("Overlap = %d, want %d", s.Overlap, DefaultOverlapTokens)
	}

	s = New(50, 80, nil)
	if s.Overlap >= s.ChunkSize {
		t.Errorf("Overlap %d not below ChunkSize %d", s.Overlap, s.ChunkSize)
	}
}

func TestApproxTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"x", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"收入增长", 1},
	}
	for _, tt := range tests {
		if got := ApproxTokens(tt.in); got != tt.want {
			t.Errorf("ApproxTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
