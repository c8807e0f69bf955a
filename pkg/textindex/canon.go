// Package textindex provides the text normalization shared by page mention
// detection and related-page vectors: a canonicalizer, a stopword-aware
// tokenizer, an Aho-Corasick index over page titles and hashed term vectors.
package textindex

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/orsinium-labs/stopwords"
)

// ============================================================================
// CANONICALIZER - shared by title patterns and scanned text
// ============================================================================

// isJoiner reports punctuation that stays inside a term, such as the
// apostrophe in "O'Brien" or the hyphen in "Jean-Luc".
func isJoiner(r rune) bool {
	switch r {
	case '\'', '-', '·', '.', '_', '/', '#', '&':
		return true
	}
	return false
}

func foldRune(r rune) rune {
	r = unicode.ToLower(r)
	switch r {
	case '’', '‘':
		return '\''
	case '–', '—':
		return '-'
	}
	return r
}

func keep(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || isJoiner(r)
}

// Canonicalize lowercases s, keeps letters, digits and joiners, and turns
// every other run of characters into a single space.
func Canonicalize(s string) string {
	out, _ := canonicalize(s, false)
	return out
}

// canonicalize optionally returns, for each byte of the output, the byte
// offset of the original rune it came from, plus a final end entry.
func canonicalize(s string, withOffsets bool) (string, []int) {
	var sb strings.Builder
	sb.Grow(len(s))
	var offsets []int
	if withOffsets {
		offsets = make([]int, 0, len(s)+1)
	}

	lastWasSpace := true
	for pos, ch := range s {
		c := foldRune(ch)
		if keep(c) {
			n, _ := sb.WriteRune(c)
			if withOffsets {
				for i := 0; i < n; i++ {
					offsets = append(offsets, pos)
				}
			}
			lastWasSpace = false
			continue
		}
		if !lastWasSpace {
			sb.WriteByte(' ')
			if withOffsets {
				offsets = append(offsets, pos)
			}
			lastWasSpace = true
		}
	}

	out := sb.String()
	if strings.HasSuffix(out, " ") {
		out = out[:len(out)-1]
		if withOffsets {
			offsets = offsets[:len(offsets)-1]
		}
	}
	if withOffsets {
		offsets = append(offsets, len(s))
	}
	return out, offsets
}

// ============================================================================
// TOKENS
// ============================================================================

var english = stopwords.MustGet("en")

// IsStopword reports whether w is a common English function word.
func IsStopword(w string) bool {
	return english.Contains(w)
}

// Tokenize splits text into canonical words, dropping stopwords and tokens
// without a letter or digit.
func Tokenize(text string) []string {
	words := strings.Fields(Canonicalize(text))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, "'-._/#&·")
		if w == "" || english.Contains(w) || !hasAlnum(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func hasAlnum(w string) bool {
	for len(w) > 0 {
		r, size := utf8.DecodeRuneInString(w)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
		w = w[size:]
	}
	return false
}

// Term is a word with its frequency.
type Term struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Keywords returns the n most frequent content words of text, ties broken
// alphabetically.
func Keywords(text string, n int) []Term {
	counts := make(map[string]int)
	for _, w := range Tokenize(text) {
		if utf8.RuneCountInString(w) < 3 {
			continue
		}
		counts[w]++
	}
	terms := make([]Term, 0, len(counts))
	for w, c := range counts {
		terms = append(terms, Term{Word: w, Count: c})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Word < terms[j].Word
	})
	if n > 0 && len(terms) > n {
		terms = terms[:n]
	}
	return terms
}
