package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kittclouds/kittpages/internal/apperror"
	"github.com/kittclouds/kittpages/internal/store"
	"github.com/kittclouds/kittpages/pkg/blocks"
	"github.com/kittclouds/kittpages/pkg/docstore"
	"github.com/kittclouds/kittpages/pkg/slug"
)

// PublishedBlock is a block as shown on a published page. Number is the
// list number of number blocks; Grouped marks a list item continuing the
// previous one; Hidden marks content inside a closed toggle.
type PublishedBlock struct {
	blocks.Block
	Number  int  `json:"number,omitempty"`
	Grouped bool `json:"grouped,omitempty"`
	Hidden  bool `json:"hidden,omitempty"`
}

// PublishedPage is the read-only payload served at /preview/:slug.
type PublishedPage struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Icon        string           `json:"icon,omitempty"`
	CoverImage  string           `json:"coverImage,omitempty"`
	FontStyle   string           `json:"fontStyle"`
	IsFullWidth bool             `json:"isFullWidth"`
	Path        string           `json:"path"`
	Blocks      []PublishedBlock `json:"blocks"`
	Headings    []blocks.Heading `json:"headings"`
	Stats       blocks.Stats     `json:"stats"`
	UpdatedAt   int64            `json:"updatedAt"`
}

var richText = bluemonday.UGCPolicy()

// GET /preview/:slug
func (s *Server) publishedPage(c echo.Context) error {
	id, ok := slug.Decode(c.Param("slug"))
	if !ok {
		return apperror.NewNotFound("page not found")
	}
	ctx := c.Request().Context()

	var page PublishedPage
	if s.cache != nil {
		hit, err := s.cache.Get(ctx, id, &page)
		if err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("preview cache read failed")
		}
		if hit {
			c.Response().Header().Set("X-Cache", "hit")
			return c.JSON(http.StatusOK, page)
		}
	}

	built, err := s.buildPublishedPage(ctx, id)
	if err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, id, built); err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("preview cache write failed")
		}
	}
	c.Response().Header().Set("X-Cache", "miss")
	return c.JSON(http.StatusOK, built)
}

func (s *Server) buildPublishedPage(ctx context.Context, id string) (*PublishedPage, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, apperror.FromStore(err, "page")
	}
	if doc == nil || !doc.IsPublished || doc.IsArchived {
		return nil, apperror.NewNotFound("page not found")
	}

	content, err := s.documentContent(ctx, id)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	content = sanitizeList(content)

	visible := make(map[string]bool)
	for _, b := range blocks.Visible(content) {
		visible[b.ID] = true
	}
	numbers := blocks.Numbering(content)
	groups := blocks.Groups(content)

	out := make([]PublishedBlock, len(content))
	for i, b := range content {
		out[i] = PublishedBlock{
			Block:   b,
			Number:  numbers[i],
			Grouped: groups[i],
			Hidden:  !visible[b.ID],
		}
	}

	headings := blocks.Headings(content)
	if headings == nil {
		headings = []blocks.Heading{}
	}
	font := doc.FontStyle
	if !store.ValidFontStyle(font) {
		font = store.FontDefault
	}
	return &PublishedPage{
		ID:          doc.ID,
		Title:       doc.Title,
		Icon:        doc.Icon,
		CoverImage:  safeURL(doc.CoverImage),
		FontStyle:   font,
		IsFullWidth: doc.IsFullWidth,
		Path:        slug.PreviewPath(doc.Title, doc.ID),
		Blocks:      out,
		Headings:    headings,
		Stats:       blocks.ComputeStats(content),
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}

// documentContent loads a document's blocks in order.
func (s *Server) documentContent(ctx context.Context, id string) ([]blocks.Block, error) {
	recs, err := s.repo.ListDocumentBlocks(ctx, id)
	if err != nil {
		return nil, err
	}
	grouped, errs := docstore.GroupBlocks(recs)
	for _, err := range errs {
		s.log.Warn().Err(err).Str("document", id).Msg("block props dropped")
	}
	return grouped[id], nil
}

// sanitizeList cleans rich text, drops unsafe URLs and recurses into
// columns.
func sanitizeList(list []blocks.Block) []blocks.Block {
	out := make([]blocks.Block, len(list))
	for i, b := range list {
		out[i] = sanitizeBlock(b)
	}
	return out
}

func sanitizeBlock(b blocks.Block) blocks.Block {
	b = blocks.Clone(b)
	switch b.Type {
	case blocks.TypeImage, blocks.TypeVideo, blocks.TypeBookmark:
		b.Content = safeURL(b.Content)
	case blocks.TypePage, blocks.TypeDivider:
	case blocks.TypeCode:
		// code is rendered as text, never as markup
	case blocks.TypeColumnContainer:
		cols := blocks.Columns(b)
		clean := make([][]blocks.Block, len(cols))
		for i, col := range cols {
			clean[i] = sanitizeList(col)
		}
		if b.Props == nil {
			b.Props = blocks.Props{}
		}
		b.Props[blocks.PropColumns] = clean
	case blocks.TypeTable:
		rows := blocks.Rows(b)
		clean := make([][]string, len(rows))
		for i, row := range rows {
			clean[i] = make([]string, len(row))
			for j, cell := range row {
				clean[i][j] = richText.Sanitize(cell)
			}
		}
		if b.Props == nil {
			b.Props = blocks.Props{}
		}
		b.Props[blocks.PropRows] = clean
	default:
		b.Content = richText.Sanitize(b.Content)
	}
	return b
}

// safeURL keeps http, https and relative URLs.
func safeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https":
		return raw
	}
	return ""
}
