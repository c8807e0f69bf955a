// Package blocks defines the content block model of a page and the pure
// operations over an ordered block list: insert, update, delete, duplicate,
// move, the recursive visitor, and the presentation state derived on read
// (toggle visibility, list numbering, visual grouping).
//
// Every function here is copy-on-write: an input slice is never modified, so
// callers can keep older slices around as history snapshots.
package blocks

import (
	"encoding/json"
	"math"
	"strconv"
)

// Type identifies how a block's Content and Props are interpreted.
type Type string

const (
	TypeText            Type = "text"
	TypeH1              Type = "h1"
	TypeH2              Type = "h2"
	TypeH3              Type = "h3"
	TypeBullet          Type = "bullet"
	TypeNumber          Type = "number"
	TypeTodo            Type = "todo"
	TypeQuote           Type = "quote"
	TypeDivider         Type = "divider"
	TypeImage           Type = "image"
	TypeCode            Type = "code"
	TypeCallout         Type = "callout"
	TypeVideo           Type = "video"
	TypeToggle          Type = "toggle"
	TypeTable           Type = "table"
	TypeColumnContainer Type = "column_container"
	TypeBookmark        Type = "bookmark"
	// TypePage references another document; Content holds its id.
	TypePage Type = "page"
)

var knownTypes = map[Type]bool{
	TypeText: true, TypeH1: true, TypeH2: true, TypeH3: true,
	TypeBullet: true, TypeNumber: true, TypeTodo: true, TypeQuote: true,
	TypeDivider: true, TypeImage: true, TypeCode: true, TypeCallout: true,
	TypeVideo: true, TypeToggle: true, TypeTable: true,
	TypeColumnContainer: true, TypeBookmark: true, TypePage: true,
}

// Valid reports whether t is one of the known block types.
func (t Type) Valid() bool {
	return knownTypes[t]
}

// ListLike reports whether blocks of this type render as list items.
func (t Type) ListLike() bool {
	return t == TypeBullet || t == TypeNumber || t == TypeTodo
}

// Well-known Props keys.
const (
	PropLevel     = "level"
	PropChecked   = "checked"
	PropIsOpen    = "isOpen"
	PropTextColor = "textColor"
	PropBgColor   = "bgColor"
	PropLanguage  = "language"
	PropRows      = "rows"
	PropColumns   = "columns"
)

// Props holds type-specific block state.
type Props map[string]any

// Block is one content unit within a document.
type Block struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Content string `json:"content"`
	Props   Props  `json:"props,omitempty"`
}

// New returns a block of the given type with no props.
func New(id string, t Type, content string) Block {
	return Block{ID: id, Type: t, Content: content}
}

// Patch is a partial block update. Nil fields are left untouched; a non-nil
// Props replaces the block's props map as a whole.
type Patch struct {
	Type    *Type   `json:"type,omitempty"`
	Content *string `json:"content,omitempty"`
	Props   Props   `json:"props,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Type == nil && p.Content == nil && p.Props == nil
}

// Apply returns b with the patch merged in.
func (p Patch) Apply(b Block) Block {
	if p.Type != nil {
		b.Type = *p.Type
	}
	if p.Content != nil {
		b.Content = *p.Content
	}
	if p.Props != nil {
		b.Props = copyProps(p.Props)
	}
	return b
}

// Clone returns a deep copy of b, including nested column blocks.
func Clone(b Block) Block {
	b.Props = copyProps(b.Props)
	return b
}

// CloneWithNewIDs deep-copies b, assigning a fresh id from newID to the block
// and to every block nested in its columns.
func CloneWithNewIDs(b Block, newID func() string) Block {
	c := Clone(b)
	c.ID = newID()
	if cols := Columns(c); cols != nil {
		fresh := make([][]Block, len(cols))
		for i, col := range cols {
			fresh[i] = make([]Block, len(col))
			for j, nested := range col {
				fresh[i][j] = CloneWithNewIDs(nested, newID)
			}
		}
		c.Props[PropColumns] = fresh
	}
	return c
}

// CloneList deep-copies every block in list.
func CloneList(list []Block) []Block {
	if list == nil {
		return nil
	}
	out := make([]Block, len(list))
	for i, b := range list {
		out[i] = Clone(b)
	}
	return out
}

// Level returns the nesting level stored in props, 0 when absent.
func Level(b Block) int {
	n, _ := intProp(b.Props, PropLevel)
	if n < 0 {
		return 0
	}
	return n
}

// IsOpen reports whether a toggle block shows its nested blocks. Only an
// explicit false closes a toggle.
func IsOpen(b Block) bool {
	v, ok := b.Props[PropIsOpen]
	if !ok {
		return true
	}
	open, isBool := v.(bool)
	return !isBool || open
}

// Checked reports the todo checked flag.
func Checked(b Block) bool {
	v, _ := b.Props[PropChecked].(bool)
	return v
}

// Columns returns the nested block lists of a column_container. Both the
// typed form and the form produced by decoding JSON are accepted.
func Columns(b Block) [][]Block {
	raw, ok := b.Props[PropColumns]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case [][]Block:
		return v
	case []any:
		out := make([][]Block, 0, len(v))
		for _, col := range v {
			out = append(out, decodeList(col))
		}
		return out
	}
	return nil
}

// Rows returns the table grid stored in props.
func Rows(b Block) [][]string {
	raw, ok := b.Props[PropRows]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case [][]string:
		return v
	case []any:
		out := make([][]string, 0, len(v))
		for _, row := range v {
			cells, _ := row.([]any)
			line := make([]string, 0, len(cells))
			for _, cell := range cells {
				s, _ := cell.(string)
				line = append(line, s)
			}
			out = append(out, line)
		}
		return out
	}
	return nil
}

// FromMap builds a block from its decoded JSON object form.
func FromMap(m map[string]any) Block {
	var b Block
	b.ID, _ = m["id"].(string)
	if t, ok := m["type"].(string); ok {
		b.Type = Type(t)
	}
	b.Content, _ = m["content"].(string)
	if props, ok := m["props"].(map[string]any); ok {
		b.Props = Props(props)
	}
	return b
}

func decodeList(v any) []Block {
	switch l := v.(type) {
	case []Block:
		return l
	case []any:
		out := make([]Block, 0, len(l))
		for _, item := range l {
			switch it := item.(type) {
			case Block:
				out = append(out, it)
			case map[string]any:
				out = append(out, FromMap(it))
			}
		}
		return out
	}
	return nil
}

func intProp(props Props, key string) (int, bool) {
	switch v := props[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if math.IsNaN(v) {
			return 0, false
		}
		return int(v), true
	case float32:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

func copyProps(p Props) Props {
	if p == nil {
		return nil
	}
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case Props:
		return copyProps(t)
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case [][]string:
		out := make([][]string, len(t))
		for i, row := range t {
			out[i] = append([]string(nil), row...)
		}
		return out
	case []Block:
		return CloneList(t)
	case [][]Block:
		out := make([][]Block, len(t))
		for i, col := range t {
			out[i] = CloneList(col)
		}
		return out
	case Block:
		return Clone(t)
	}
	return v
}
