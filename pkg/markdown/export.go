// Package markdown converts pages to and from Markdown.
//
// Export writes GitHub-flavored Markdown: list numbering, nested levels,
// todos, tables and code fences survive a round trip through Import; nesting
// levels are kept for list items only. Rich text inside blocks is stored as
// a small HTML subset (b, i, s, code, a) and is mapped to the matching
// inline Markdown.
package markdown

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kittclouds/kittpages/pkg/blocks"
)

// PageLink resolves a page block's target document to a title and href.
type PageLink func(id string) (title, href string, ok bool)

// Export renders a page. An empty title omits the leading heading; link may
// be nil, in which case page blocks render with their raw id.
func Export(title string, list []blocks.Block, link PageLink) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString("# ")
		sb.WriteString(inline(title))
		sb.WriteString("\n\n")
	}
	writeList(&sb, list, link)
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func writeList(sb *strings.Builder, list []blocks.Block, link PageLink) {
	numbers := blocks.Numbering(list)
	groups := blocks.Groups(list)
	for i, b := range list {
		if i > 0 && !groups[i] && !nestedItem(list[i-1], b) {
			sb.WriteByte('\n')
		}
		writeBlock(sb, b, numbers[i], link)
	}
}

// nestedItem reports whether b is a list item directly under or after a
// list item at another level, which keeps the list tight.
func nestedItem(prev, b blocks.Block) bool {
	item := func(x blocks.Block) bool { return x.Type.ListLike() || x.Type == blocks.TypeToggle }
	return item(prev) && item(b) && blocks.Level(prev) != blocks.Level(b)
}

func writeBlock(sb *strings.Builder, b blocks.Block, number int, link PageLink) {
	// Only list items nest; an indented paragraph would become a code block.
	var indent string
	if b.Type.ListLike() || b.Type == blocks.TypeToggle {
		indent = strings.Repeat("    ", blocks.Level(b))
	}
	line := func(prefix, text string) {
		sb.WriteString(indent)
		sb.WriteString(prefix)
		sb.WriteString(text)
		sb.WriteByte('\n')
	}

	switch b.Type {
	case blocks.TypeH1:
		line("# ", inline(b.Content))
	case blocks.TypeH2:
		line("## ", inline(b.Content))
	case blocks.TypeH3:
		line("### ", inline(b.Content))
	case blocks.TypeBullet:
		line("- ", inline(b.Content))
	case blocks.TypeNumber:
		line(fmt.Sprintf("%d. ", max(number, 1)), inline(b.Content))
	case blocks.TypeTodo:
		box := "[ ] "
		if blocks.Checked(b) {
			box = "[x] "
		}
		line("- "+box, inline(b.Content))
	case blocks.TypeQuote, blocks.TypeCallout:
		for _, l := range strings.Split(inline(b.Content), "\n") {
			line("> ", l)
		}
	case blocks.TypeToggle:
		line("- ", "**"+inline(b.Content)+"**")
	case blocks.TypeDivider:
		line("", "---")
	case blocks.TypeImage:
		if b.Content != "" {
			line("", "![]("+b.Content+")")
		}
	case blocks.TypeVideo:
		if b.Content != "" {
			line("", "[Video]("+b.Content+")")
		}
	case blocks.TypeBookmark:
		if b.Content != "" {
			label, _ := b.Props["title"].(string)
			if label == "" {
				label = b.Content
			}
			line("", "["+escape(label)+"]("+b.Content+")")
		}
	case blocks.TypePage:
		title, href := b.Content, b.Content
		if link != nil {
			if t, h, ok := link(b.Content); ok {
				title, href = t, h
			}
		}
		line("", "["+escape(title)+"]("+href+")")
	case blocks.TypeCode:
		lang, _ := b.Props[blocks.PropLanguage].(string)
		fence := "```"
		for strings.Contains(b.Content, fence) {
			fence += "`"
		}
		line("", fence+lang)
		for _, l := range strings.Split(b.Content, "\n") {
			line("", l)
		}
		line("", fence)
	case blocks.TypeTable:
		writeTable(sb, blocks.Rows(b))
	case blocks.TypeColumnContainer:
		for i, col := range blocks.Columns(b) {
			if i > 0 {
				sb.WriteByte('\n')
			}
			writeList(sb, col, link)
		}
	default:
		text := inline(b.Content)
		if text == "" {
			return
		}
		for _, l := range strings.Split(text, "\n") {
			line("", l)
		}
	}
}

func writeTable(sb *strings.Builder, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	if width == 0 {
		return
	}
	row := func(cells []string) {
		sb.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(cells) {
				cell = strings.ReplaceAll(inline(cells[i]), "|", `\|`)
				cell = strings.ReplaceAll(cell, "\n", " ")
			}
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteByte('\n')
	}
	row(rows[0])
	sb.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
	for _, r := range rows[1:] {
		row(r)
	}
}

var markdownSpecial = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`,
)

func escape(s string) string {
	return markdownSpecial.Replace(s)
}

// inline converts block rich text to inline Markdown. Unknown tags are
// dropped and their text kept.
func inline(content string) string {
	if !strings.ContainsAny(content, "<&") {
		return escape(content)
	}
	var (
		sb    strings.Builder
		hrefs []string
	)
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.TextToken:
			sb.WriteString(escape(string(z.Text())))
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			closing := tok.Type == html.EndTagToken
			switch tok.DataAtom {
			case atom.B, atom.Strong:
				sb.WriteString("**")
			case atom.I, atom.Em:
				sb.WriteString("*")
			case atom.S, atom.Del, atom.Strike:
				sb.WriteString("~~")
			case atom.Code:
				sb.WriteString("`")
			case atom.Br:
				sb.WriteString("\n")
			case atom.A:
				if !closing {
					href := ""
					for _, a := range tok.Attr {
						if a.Key == "href" {
							href = a.Val
						}
					}
					hrefs = append(hrefs, href)
					sb.WriteString("[")
				} else if n := len(hrefs); n > 0 {
					sb.WriteString("](" + hrefs[n-1] + ")")
					hrefs = hrefs[:n-1]
				}
			}
		}
	}
}
