package textindex

import (
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
)

// MinTitleRunes is the shortest canonical title that is indexed; shorter
// titles would match ordinary words everywhere.
const MinTitleRunes = 3

// Titled is a page that can be mentioned by title.
type Titled struct {
	ID    string
	Title string
}

// Mention is a title occurrence in scanned text.
type Mention struct {
	DocumentIDs []string
	Start       int // byte offset in the original text
	End         int
	Text        string
}

// MentionIndex finds page titles inside free text with a single
// Aho-Corasick automaton over all canonical titles.
type MentionIndex struct {
	ac           *ahocorasick.Automaton
	patterns     []string
	patternIndex map[string]int
	patternToIDs [][]string
}

// NewMentionIndex compiles the titles of pages. Pages sharing a canonical
// title share one pattern.
func NewMentionIndex(pages []Titled) (*MentionIndex, error) {
	idx := &MentionIndex{patternIndex: make(map[string]int)}

	for _, p := range pages {
		key := Canonicalize(p.Title)
		if utf8.RuneCountInString(key) < MinTitleRunes {
			continue
		}
		if i, ok := idx.patternIndex[key]; ok {
			idx.patternToIDs[i] = appendUnique(idx.patternToIDs[i], p.ID)
			continue
		}
		idx.patternIndex[key] = len(idx.patterns)
		idx.patterns = append(idx.patterns, key)
		idx.patternToIDs = append(idx.patternToIDs, []string{p.ID})
	}

	if len(idx.patterns) == 0 {
		return idx, nil
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(idx.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	idx.ac = automaton
	return idx, nil
}

// Len returns the number of distinct title patterns.
func (m *MentionIndex) Len() int {
	return len(m.patterns)
}

// Scan returns every whole-word title occurrence in text.
func (m *MentionIndex) Scan(text string) []Mention {
	if m == nil || m.ac == nil || text == "" {
		return nil
	}

	canon, offsets := canonicalize(text, true)
	haystack := []byte(canon)

	matches := m.ac.FindAllOverlapping(haystack)
	out := make([]Mention, 0, len(matches))
	for _, hit := range matches {
		if !wordBoundary(haystack, hit.Start, hit.End) {
			continue
		}
		start := mapOffset(hit.Start, offsets, len(text))
		end := mapOffset(hit.End, offsets, len(text))
		if start >= end || end > len(text) {
			continue
		}
		out = append(out, Mention{
			DocumentIDs: m.patternToIDs[hit.PatternID],
			Start:       start,
			End:         end,
			Text:        text[start:end],
		})
	}
	return out
}

// Mentioned returns the ids of pages whose titles occur in text, in order of
// first occurrence.
func (m *MentionIndex) Mentioned(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, mention := range m.Scan(text) {
		for _, id := range mention.DocumentIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// wordBoundary rejects matches inside longer words. Trailing joiners such
// as a sentence period and a possessive "'s" still count as a boundary.
func wordBoundary(h []byte, start, end int) bool {
	if start > 0 && h[start-1] != ' ' && !isJoiner(rune(h[start-1])) {
		return false
	}
	if start > 1 && h[start-1] != ' ' && h[start-2] != ' ' {
		return false
	}
	rest := h[end:]
	if len(rest) >= 2 && rest[0] == '\'' && rest[1] == 's' {
		rest = rest[2:]
	}
	for len(rest) > 0 && rest[0] != ' ' {
		if !isJoiner(rune(rest[0])) {
			return false
		}
		rest = rest[1:]
	}
	return true
}

// mapOffset converts a canonical byte offset to an original one. An end
// offset maps to the start of the following canonical byte, so a match
// followed by punctuation ends before it.
func mapOffset(canon int, offsets []int, originalLen int) int {
	if canon < 0 {
		return 0
	}
	if canon >= len(offsets) {
		return originalLen
	}
	return offsets[canon]
}

func appendUnique(list []string, item string) []string {
	for _, s := range list {
		if s == item {
			return list
		}
	}
	return append(list, item)
}
