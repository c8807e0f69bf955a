// Package slug maps document titles and ids to URL paths and back.
//
// A slug is "/" + slugified title + "-" + the id with dashes removed, e.g.
// "/meeting-notes-1b4e28ba2fa111d2883f0016d3cca427". Only the id survives a
// round trip; the title part is informational.
package slug

import (
	"strings"

	goslug "github.com/gosimple/slug"
	"github.com/google/uuid"
)

// Placeholder is used for the title part when a title slugifies to nothing.
const Placeholder = "untitled"

const (
	previewPrefix = "preview/"
	compactLen    = 32
)

// Title returns the slugified title part.
func Title(title string) string {
	s := strings.Trim(goslug.Make(title), "-")
	if s == "" {
		return Placeholder
	}
	return s
}

// Compact strips the separators from an id.
func Compact(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

// Encode builds the slug for a document.
func Encode(title, id string) string {
	return "/" + Title(title) + "-" + Compact(id)
}

// Path is the canonical address of a document.
func Path(title, id string) string {
	return Encode(title, id)
}

// PreviewPath is the address of a document's published read-only view.
func PreviewPath(title, id string) string {
	return "/" + previewPrefix + strings.TrimPrefix(Encode(title, id), "/")
}

// Decode recovers the canonical dashed id from a slug. It accepts a
// canonical id, a bare 32-character id, or a full slug ending in
// "-<32 characters>", each optionally prefixed with "/" or "/preview/".
func Decode(s string) (string, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "/")
	s = strings.TrimPrefix(s, previewPrefix)
	if s == "" {
		return "", false
	}

	if len(s) == 36 || len(s) == compactLen {
		if id, ok := canonical(s); ok {
			return id, true
		}
	}

	if len(s) > compactLen && s[len(s)-compactLen-1] == '-' {
		return canonical(s[len(s)-compactLen:])
	}
	return "", false
}

func canonical(s string) (string, bool) {
	if len(s) == 36 && strings.Count(s, "-") != 4 {
		return "", false
	}
	if len(s) == compactLen && !isHex(s) {
		return "", false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
