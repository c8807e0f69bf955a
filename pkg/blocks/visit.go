package blocks

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// Walk calls fn for every block in list in reading order, descending into
// the nested lists of column_container blocks. depth is 0 for top-level
// blocks and increases by one per column nesting.
func Walk(list []Block, fn func(b Block, depth int)) {
	walk(list, 0, fn)
}

func walk(list []Block, depth int, fn func(Block, int)) {
	for _, b := range list {
		fn(b, depth)
		if b.Type != TypeColumnContainer {
			continue
		}
		for _, col := range Columns(b) {
			walk(col, depth+1, fn)
		}
	}
}

// Heading is one entry of a document outline.
type Heading struct {
	BlockID string `json:"blockId"`
	Level   int    `json:"level"`
	Text    string `json:"text"`
}

// Headings extracts the h1/h2/h3 outline, including headings inside columns.
func Headings(list []Block) []Heading {
	var out []Heading
	Walk(list, func(b Block, _ int) {
		var level int
		switch b.Type {
		case TypeH1:
			level = 1
		case TypeH2:
			level = 2
		case TypeH3:
			level = 3
		default:
			return
		}
		out = append(out, Heading{BlockID: b.ID, Level: level, Text: PlainText(b.Content)})
	})
	return out
}

var textPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// PlainText strips rich-text markup from content and collapses whitespace.
func PlainText(content string) string {
	if content == "" {
		return ""
	}
	stripped := html.UnescapeString(textPolicy.Sanitize(content))
	return strings.Join(strings.Fields(stripped), " ")
}

// textual reports whether a block's content is readable text rather than a
// URL or reference.
func textual(t Type) bool {
	switch t {
	case TypeImage, TypeVideo, TypeBookmark, TypePage, TypeDivider, TypeColumnContainer, TypeTable:
		return false
	}
	return true
}

// Text returns the readable text of every block, one line per block. Table
// cells are included.
func Text(list []Block) string {
	var sb strings.Builder
	Walk(list, func(b Block, _ int) {
		var line string
		switch {
		case b.Type == TypeTable:
			var cells []string
			for _, row := range Rows(b) {
				for _, cell := range row {
					if c := PlainText(cell); c != "" {
						cells = append(cells, c)
					}
				}
			}
			line = strings.Join(cells, " ")
		case textual(b.Type):
			line = PlainText(b.Content)
		}
		if line == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	})
	return sb.String()
}

// CountWords counts whitespace-separated words across all blocks.
func CountWords(list []Block) int {
	n := 0
	for _, f := range strings.FieldsFunc(Text(list), unicode.IsSpace) {
		if strings.IndexFunc(f, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			n++
		}
	}
	return n
}

// Stats summarizes a block list.
type Stats struct {
	Blocks     int `json:"blocks"`
	Words      int `json:"words"`
	Characters int `json:"characters"`
	Headings   int `json:"headings"`
	Todos      int `json:"todos"`
	TodosDone  int `json:"todosDone"`
	// ReadingMinutes assumes 200 words per minute, rounded up.
	ReadingMinutes int `json:"readingMinutes"`
}

// ComputeStats walks list once for block counts and derives word figures
// from its text.
func ComputeStats(list []Block) Stats {
	var s Stats
	Walk(list, func(b Block, _ int) {
		s.Blocks++
		switch b.Type {
		case TypeH1, TypeH2, TypeH3:
			s.Headings++
		case TypeTodo:
			s.Todos++
			if Checked(b) {
				s.TodosDone++
			}
		}
	})
	text := Text(list)
	s.Words = CountWords(list)
	s.Characters = len([]rune(strings.ReplaceAll(text, "\n", "")))
	s.ReadingMinutes = (s.Words + 199) / 200
	return s
}

// Links returns the target document ids of every page block, in order and
// without duplicates.
func Links(list []Block) []string {
	seen := make(map[string]bool)
	var out []string
	Walk(list, func(b Block, _ int) {
		if b.Type != TypePage || b.Content == "" || seen[b.Content] {
			return
		}
		seen[b.Content] = true
		out = append(out, b.Content)
	})
	return out
}
