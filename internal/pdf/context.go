package pdf

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	contextLines    = 4
	contextMinChars = 10
	contextMaxWords = 120
	contextMaxChars = 800
)

// Box is a rectangle in page space (origin bottom-left, y up).
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// Empty reports whether b has no area.
func (b Box) Empty() bool {
	return b.MaxX <= b.MinX || b.MaxY <= b.MinY
}

// Line is one row of page text at baseline Y.
type Line struct {
	Text string
	Y    float64
}

// distance is the vertical gap between y and b, zero when y falls inside.
func (b Box) distance(y float64) float64 {
	switch {
	case y < b.MinY:
		return b.MinY - y
	case y > b.MaxY:
		return y - b.MaxY
	}
	return 0
}

// NearbyText picks the text rows closest to box, skipping short and repeated
// rows, and joins them top to bottom. The result is capped at 120 words and
// 800 characters.
func NearbyText(lines []Line, box Box) string {
	type candidate struct {
		Line
		dist float64
	}

	seen := make(map[string]struct{})
	var cands []candidate
	for _, l := range lines {
		text := strings.Join(strings.Fields(l.Text), " ")
		if utf8.RuneCountInString(text) < contextMinChars {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		cands = append(cands, candidate{Line{Text: text, Y: l.Y}, box.distance(l.Y)})
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > contextLines {
		cands = cands[:contextLines]
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Y > cands[j].Y })

	parts := make([]string, len(cands))
	for i, c := range cands {
		parts[i] = c.Text
	}
	return truncate(strings.Join(parts, " "))
}

func truncate(s string) string {
	words := strings.Fields(s)
	if len(words) > contextMaxWords {
		words = words[:contextMaxWords]
	}
	s = strings.Join(words, " ")
	if utf8.RuneCountInString(s) > contextMaxChars {
		s = string([]rune(s)[:contextMaxChars])
	}
	return s
}
