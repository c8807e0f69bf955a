package markdown

import (
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/kittclouds/kittpages/pkg/blocks"
)

var parser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

// Page is the result of Import.
type Page struct {
	Title  string
	Blocks []blocks.Block
}

// Import parses Markdown into blocks. A leading level-one heading becomes
// the page title. newID supplies block ids.
func Import(src []byte, newID func() string) Page {
	doc := parser.Parse(text.NewReader(src))
	im := &importer{src: src, newID: newID}

	first := doc.FirstChild()
	if h, ok := first.(*ast.Heading); ok && h.Level == 1 {
		im.page.Title = blocks.PlainText(im.inline(h))
		first = first.NextSibling()
	}
	for n := first; n != nil; n = n.NextSibling() {
		im.block(n, 0)
	}
	return im.page
}

type importer struct {
	src   []byte
	newID func() string
	page  Page
}

func (im *importer) add(t blocks.Type, content string, level int, props blocks.Props) {
	b := blocks.New(im.newID(), t, content)
	if level > 0 {
		if props == nil {
			props = blocks.Props{}
		}
		props[blocks.PropLevel] = level
	}
	b.Props = props
	im.page.Blocks = append(im.page.Blocks, b)
}

func (im *importer) block(n ast.Node, level int) {
	switch n := n.(type) {
	case *ast.Heading:
		t := blocks.TypeH3
		switch n.Level {
		case 1:
			t = blocks.TypeH1
		case 2:
			t = blocks.TypeH2
		}
		im.add(t, im.inline(n), level, nil)

	case *ast.Paragraph, *ast.TextBlock:
		if img, ok := soleImage(n); ok {
			im.add(blocks.TypeImage, string(img.Destination), level, nil)
			return
		}
		im.add(blocks.TypeText, im.inline(n), level, nil)

	case *ast.List:
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			im.listItem(n, item, level)
		}

	case *ast.Blockquote:
		var lines []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			lines = append(lines, im.inline(c))
		}
		im.add(blocks.TypeQuote, strings.Join(lines, "<br>"), level, nil)

	case *ast.FencedCodeBlock:
		var props blocks.Props
		if lang := string(n.Language(im.src)); lang != "" {
			props = blocks.Props{blocks.PropLanguage: lang}
		}
		im.add(blocks.TypeCode, im.lines(n), level, props)

	case *ast.CodeBlock:
		im.add(blocks.TypeCode, im.lines(n), level, nil)

	case *ast.ThematicBreak:
		im.add(blocks.TypeDivider, "", level, nil)

	case *east.Table:
		var rows [][]string
		for r := n.FirstChild(); r != nil; r = r.NextSibling() {
			var cells []string
			for c := r.FirstChild(); c != nil; c = c.NextSibling() {
				cells = append(cells, im.inline(c))
			}
			rows = append(rows, cells)
		}
		im.add(blocks.TypeTable, "", level, blocks.Props{blocks.PropRows: rows})

	case *ast.HTMLBlock:
		im.add(blocks.TypeText, html.EscapeString(strings.TrimSpace(im.lines(n))), level, nil)
	}
}

// listItem adds one item and recurses into nested lists one level deeper.
func (im *importer) listItem(list *ast.List, item ast.Node, level int) {
	t := blocks.TypeBullet
	if list.IsOrdered() {
		t = blocks.TypeNumber
	}
	var (
		content string
		props   blocks.Props
		added   bool
	)
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		if added || (c.Kind() != ast.KindParagraph && c.Kind() != ast.KindTextBlock) {
			if !added {
				im.add(t, content, level, props)
				added = true
			}
			im.block(c, level+1)
			continue
		}
		if box, ok := c.FirstChild().(*east.TaskCheckBox); ok {
			t = blocks.TypeTodo
			props = blocks.Props{blocks.PropChecked: box.IsChecked}
		}
		content = im.inline(c)
		im.add(t, content, level, props)
		added = true
	}
	if !added {
		im.add(t, "", level, props)
	}
}

func soleImage(n ast.Node) (*ast.Image, bool) {
	if n.ChildCount() != 1 {
		return nil, false
	}
	img, ok := n.FirstChild().(*ast.Image)
	return img, ok
}

func (im *importer) lines(n ast.Node) string {
	var sb strings.Builder
	segs := n.Lines()
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		sb.Write(seg.Value(im.src))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// inline renders the inline children of n as block rich text.
func (im *importer) inline(n ast.Node) string {
	var sb strings.Builder
	im.inlineTo(&sb, n)
	return strings.TrimSpace(sb.String())
}

// unescape resolves backslash escapes and character references the way
// goldmark's renderer does.
func unescape(b []byte) string {
	return string(util.ResolveEntityNames(util.ResolveNumericReferences(util.UnescapePunctuations(b))))
}

func (im *importer) inlineTo(sb *strings.Builder, n ast.Node) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			sb.WriteString(html.EscapeString(unescape(c.Segment.Value(im.src))))
			switch {
			case c.HardLineBreak():
				sb.WriteString("<br>")
			case c.SoftLineBreak():
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.WriteString(html.EscapeString(string(c.Value)))
		case *ast.Emphasis:
			tag := "i"
			if c.Level == 2 {
				tag = "b"
			}
			sb.WriteString("<" + tag + ">")
			im.inlineTo(sb, c)
			sb.WriteString("</" + tag + ">")
		case *east.Strikethrough:
			sb.WriteString("<s>")
			im.inlineTo(sb, c)
			sb.WriteString("</s>")
		case *ast.CodeSpan:
			sb.WriteString("<code>")
			for t := c.FirstChild(); t != nil; t = t.NextSibling() {
				if seg, ok := t.(*ast.Text); ok {
					sb.WriteString(html.EscapeString(string(seg.Segment.Value(im.src))))
				}
			}
			sb.WriteString("</code>")
		case *ast.Link:
			sb.WriteString(`<a href="` + html.EscapeString(string(c.Destination)) + `">`)
			im.inlineTo(sb, c)
			sb.WriteString("</a>")
		case *ast.AutoLink:
			u := html.EscapeString(string(c.URL(im.src)))
			sb.WriteString(`<a href="` + u + `">` + u + "</a>")
		case *ast.Image:
			im.inlineTo(sb, c)
		case *east.TaskCheckBox, *ast.RawHTML:
		default:
			im.inlineTo(sb, c)
		}
	}
}
