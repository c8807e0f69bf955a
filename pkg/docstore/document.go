package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kittclouds/kittpages/internal/store"
	"github.com/kittclouds/kittpages/pkg/blocks"
)

// Document is a node of the page tree. ParentID is empty for root pages.
type Document struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Icon        string         `json:"icon,omitempty"`
	CoverImage  string         `json:"coverImage,omitempty"`
	Content     []blocks.Block `json:"content"`
	Children    []string       `json:"children"`
	ParentID    string         `json:"parentId,omitempty"`
	IsExpanded  bool           `json:"isExpanded"`
	IsFavorite  bool           `json:"isFavorite"`
	IsArchived  bool           `json:"isArchived"`
	IsPublished bool           `json:"isPublished"`
	IsFullWidth bool           `json:"isFullWidth"`
	IsLocked    bool           `json:"isLocked"`
	FontStyle   string         `json:"fontStyle"`
	CreatedAt   int64          `json:"createdAt"`
	UpdatedAt   int64          `json:"updatedAt"`
}

// DisplayTitle is the title shown for the document, "Untitled" when empty.
func (d Document) DisplayTitle() string {
	if d.Title == "" {
		return "Untitled"
	}
	return d.Title
}

// Fields is a partial document update. Nil fields are left untouched.
type Fields struct {
	Title       *string `json:"title,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	CoverImage  *string `json:"coverImage,omitempty"`
	IsExpanded  *bool   `json:"isExpanded,omitempty"`
	IsFavorite  *bool   `json:"isFavorite,omitempty"`
	IsArchived  *bool   `json:"isArchived,omitempty"`
	IsPublished *bool   `json:"isPublished,omitempty"`
	IsFullWidth *bool   `json:"isFullWidth,omitempty"`
	IsLocked    *bool   `json:"isLocked,omitempty"`
	FontStyle   *string `json:"fontStyle,omitempty"`
}

func (f Fields) empty() bool {
	return f.Title == nil && f.Icon == nil && f.CoverImage == nil && f.IsExpanded == nil &&
		f.IsFavorite == nil && f.IsArchived == nil && f.IsPublished == nil &&
		f.IsFullWidth == nil && f.IsLocked == nil && f.FontStyle == nil
}

// apply merges f into d and returns the backend payload for the fields
// that were set.
func (f Fields) apply(d *Document) store.DocumentFields {
	var out store.DocumentFields
	if f.Title != nil {
		d.Title = *f.Title
		out.Title = f.Title
	}
	if f.Icon != nil {
		d.Icon = *f.Icon
		out.Icon = f.Icon
	}
	if f.CoverImage != nil {
		d.CoverImage = *f.CoverImage
		out.CoverImage = f.CoverImage
	}
	if f.IsExpanded != nil {
		d.IsExpanded = *f.IsExpanded
		out.IsExpanded = f.IsExpanded
	}
	if f.IsFavorite != nil {
		d.IsFavorite = *f.IsFavorite
		out.IsFavorite = f.IsFavorite
	}
	if f.IsArchived != nil {
		d.IsArchived = *f.IsArchived
		out.IsArchived = f.IsArchived
	}
	if f.IsPublished != nil {
		d.IsPublished = *f.IsPublished
		out.IsPublished = f.IsPublished
	}
	if f.IsFullWidth != nil {
		d.IsFullWidth = *f.IsFullWidth
		out.IsFullWidth = f.IsFullWidth
	}
	if f.IsLocked != nil {
		d.IsLocked = *f.IsLocked
		out.IsLocked = f.IsLocked
	}
	if f.FontStyle != nil {
		d.FontStyle = *f.FontStyle
		out.FontStyle = f.FontStyle
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// copyDocument deep-copies d so callers cannot reach shared state.
func copyDocument(d *Document) Document {
	c := *d
	c.Content = blocks.CloneList(d.Content)
	c.Children = append([]string(nil), d.Children...)
	return c
}

// =============================================================================
// Record conversion
// =============================================================================

func (d *Document) record(position int, ownerID string) *store.DocumentRecord {
	return &store.DocumentRecord{
		ID:          d.ID,
		Title:       d.Title,
		Icon:        d.Icon,
		CoverImage:  d.CoverImage,
		ParentID:    d.ParentID,
		OwnerID:     ownerID,
		Position:    position,
		IsExpanded:  d.IsExpanded,
		IsFavorite:  d.IsFavorite,
		IsArchived:  d.IsArchived,
		IsPublished: d.IsPublished,
		IsFullWidth: d.IsFullWidth,
		IsLocked:    d.IsLocked,
		FontStyle:   d.FontStyle,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func documentFromRecord(r *store.DocumentRecord) *Document {
	font := r.FontStyle
	if !store.ValidFontStyle(font) {
		font = store.FontDefault
	}
	return &Document{
		ID:          r.ID,
		Title:       r.Title,
		Icon:        r.Icon,
		CoverImage:  r.CoverImage,
		ParentID:    r.ParentID,
		IsExpanded:  r.IsExpanded,
		IsFavorite:  r.IsFavorite,
		IsArchived:  r.IsArchived,
		IsPublished: r.IsPublished,
		IsFullWidth: r.IsFullWidth,
		IsLocked:    r.IsLocked,
		FontStyle:   font,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func encodeProps(p blocks.Props) (json.RawMessage, error) {
	if len(p) == 0 {
		return json.RawMessage("{}"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode props: %w", err)
	}
	return data, nil
}

func decodeProps(raw json.RawMessage) (blocks.Props, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, nil
	}
	var p blocks.Props
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode props: %w", err)
	}
	return p, nil
}

func blockRecord(docID string, b blocks.Block, position int) (*store.BlockRecord, error) {
	props, err := encodeProps(b.Props)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", b.ID, err)
	}
	return &store.BlockRecord{
		ID:         b.ID,
		DocumentID: docID,
		Type:       string(b.Type),
		Content:    b.Content,
		Props:      props,
		Position:   position,
	}, nil
}

// BlockRecords converts list[from:] to records whose positions equal the
// list indexes.
func BlockRecords(docID string, list []blocks.Block, from int) ([]*store.BlockRecord, error) {
	if from < 0 {
		from = 0
	}
	if from > len(list) {
		from = len(list)
	}
	out := make([]*store.BlockRecord, 0, len(list)-from)
	for i := from; i < len(list); i++ {
		rec, err := blockRecord(docID, list[i], i)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GroupBlocks turns flat block records into per-document ordered content.
func GroupBlocks(records []*store.BlockRecord) (map[string][]blocks.Block, []error) {
	sorted := append([]*store.BlockRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})

	out := make(map[string][]blocks.Block)
	var errs []error
	for _, r := range sorted {
		props, err := decodeProps(r.Props)
		if err != nil {
			errs = append(errs, fmt.Errorf("block %s: %w", r.ID, err))
		}
		out[r.DocumentID] = append(out[r.DocumentID], blocks.Block{
			ID:      r.ID,
			Type:    blocks.Type(r.Type),
			Content: r.Content,
			Props:   props,
		})
	}
	return out, errs
}
