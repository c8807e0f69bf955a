// Package store defines the document backend contract and its SQL-backed
// implementation. Documents and blocks are stored flat; the page tree and
// per-document block order are rebuilt by clients from parent_id and
// position.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned when an update or delete targets an unknown id.
	ErrNotFound = errors.New("store: not found")
	// ErrVectorsUnsupported is returned by vector operations on databases
	// without the vec0 module.
	ErrVectorsUnsupported = errors.New("store: vector index not supported by this database")
)

// Font styles a document can be rendered with.
const (
	FontDefault = "default"
	FontSerif   = "serif"
	FontMono    = "mono"
)

// ValidFontStyle reports whether s is a known font style.
func ValidFontStyle(s string) bool {
	return s == FontDefault || s == FontSerif || s == FontMono
}

// DocumentRecord is a persisted page. ParentID is empty for root pages.
type DocumentRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Icon        string `json:"icon,omitempty"`
	CoverImage  string `json:"coverImage,omitempty"`
	ParentID    string `json:"parentId,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`
	Position    int    `json:"position"`
	IsExpanded  bool   `json:"isExpanded"`
	IsFavorite  bool   `json:"isFavorite"`
	IsArchived  bool   `json:"isArchived"`
	IsPublished bool   `json:"isPublished"`
	IsFullWidth bool   `json:"isFullWidth"`
	IsLocked    bool   `json:"isLocked"`
	FontStyle   string `json:"fontStyle"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// BlockRecord is a persisted block. Props is an opaque JSON object.
type BlockRecord struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"documentId"`
	Type       string          `json:"type"`
	Content    string          `json:"content"`
	Props      json.RawMessage `json:"props,omitempty"`
	Position   int             `json:"position"`
	CreatedAt  int64           `json:"createdAt"`
	UpdatedAt  int64           `json:"updatedAt"`
}

// DocumentFields is a partial document update; nil fields are not sent.
// A non-nil ParentID pointing at "" moves the document to the root list.
type DocumentFields struct {
	Title       *string `json:"title,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	CoverImage  *string `json:"coverImage,omitempty"`
	ParentID    *string `json:"parentId,omitempty"`
	Position    *int    `json:"position,omitempty"`
	IsExpanded  *bool   `json:"isExpanded,omitempty"`
	IsFavorite  *bool   `json:"isFavorite,omitempty"`
	IsArchived  *bool   `json:"isArchived,omitempty"`
	IsPublished *bool   `json:"isPublished,omitempty"`
	IsFullWidth *bool   `json:"isFullWidth,omitempty"`
	IsLocked    *bool   `json:"isLocked,omitempty"`
	FontStyle   *string `json:"fontStyle,omitempty"`
}

// Empty reports whether no field is set.
func (f DocumentFields) Empty() bool {
	return f.Title == nil && f.Icon == nil && f.CoverImage == nil && f.ParentID == nil &&
		f.Position == nil && f.IsExpanded == nil && f.IsFavorite == nil && f.IsArchived == nil &&
		f.IsPublished == nil && f.IsFullWidth == nil && f.IsLocked == nil && f.FontStyle == nil
}

// Apply merges the set fields into rec.
func (f DocumentFields) Apply(rec *DocumentRecord) {
	setString(&rec.Title, f.Title)
	setString(&rec.Icon, f.Icon)
	setString(&rec.CoverImage, f.CoverImage)
	setString(&rec.ParentID, f.ParentID)
	setString(&rec.FontStyle, f.FontStyle)
	if f.Position != nil {
		rec.Position = *f.Position
	}
	setBool(&rec.IsExpanded, f.IsExpanded)
	setBool(&rec.IsFavorite, f.IsFavorite)
	setBool(&rec.IsArchived, f.IsArchived)
	setBool(&rec.IsPublished, f.IsPublished)
	setBool(&rec.IsFullWidth, f.IsFullWidth)
	setBool(&rec.IsLocked, f.IsLocked)
}

// BlockFields is a partial block update; nil fields are not sent.
type BlockFields struct {
	Type     *string         `json:"type,omitempty"`
	Content  *string         `json:"content,omitempty"`
	Props    json.RawMessage `json:"props,omitempty"`
	Position *int            `json:"position,omitempty"`
}

// Empty reports whether no field is set.
func (f BlockFields) Empty() bool {
	return f.Type == nil && f.Content == nil && f.Props == nil && f.Position == nil
}

// Apply merges the set fields into rec.
func (f BlockFields) Apply(rec *BlockRecord) {
	setString(&rec.Type, f.Type)
	setString(&rec.Content, f.Content)
	if f.Props != nil {
		rec.Props = append(json.RawMessage(nil), f.Props...)
	}
	if f.Position != nil {
		rec.Position = *f.Position
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Backend is the remote document store the page tree syncs to.
type Backend interface {
	ListDocuments(ctx context.Context) ([]*DocumentRecord, error)
	ListBlocks(ctx context.Context) ([]*BlockRecord, error)

	CreateDocument(ctx context.Context, doc *DocumentRecord) (*DocumentRecord, error)
	UpdateDocument(ctx context.Context, id string, fields DocumentFields) (*DocumentRecord, error)
	// DeleteDocument also removes the document's blocks.
	DeleteDocument(ctx context.Context, id string) error

	CreateBlock(ctx context.Context, block *BlockRecord) (*BlockRecord, error)
	UpdateBlock(ctx context.Context, id string, fields BlockFields) (*BlockRecord, error)
	DeleteBlock(ctx context.Context, id string) error
	// UpsertBlocks inserts or fully replaces each block by id.
	UpsertBlocks(ctx context.Context, blocks []*BlockRecord) ([]*BlockRecord, error)
}

// Reader exposes single-record lookups used by read-only views.
// GetDocument and GetBlock return nil, nil for an unknown id.
type Reader interface {
	GetDocument(ctx context.Context, id string) (*DocumentRecord, error)
	GetBlock(ctx context.Context, id string) (*BlockRecord, error)
	ListDocumentBlocks(ctx context.Context, documentID string) ([]*BlockRecord, error)
}

// Repository is a Backend that also serves direct reads.
type Repository interface {
	Backend
	Reader
}

// Neighbor is a nearest-neighbor search hit.
type Neighbor struct {
	DocumentID string  `json:"documentId"`
	Distance   float64 `json:"distance"`
}

// VectorIndex stores one embedding per document for related-page lookups.
type VectorIndex interface {
	IndexDocumentVector(ctx context.Context, documentID string, vec []float32) error
	SimilarDocuments(ctx context.Context, vec []float32, k int) ([]Neighbor, error)
}

// Snapshot is the portable JSON form used by Export and Import.
type Snapshot struct {
	Documents []*DocumentRecord `json:"documents"`
	Blocks    []*BlockRecord    `json:"blocks"`
}
