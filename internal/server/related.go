package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kittclouds/kittpages/internal/apperror"
	"github.com/kittclouds/kittpages/internal/store"
	"github.com/kittclouds/kittpages/pkg/blocks"
	"github.com/kittclouds/kittpages/pkg/textindex"
)

const (
	defaultRelated = 5
	maxRelated     = 50
)

// RelatedPage is one hit of a related-pages query.
type RelatedPage struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Icon     string  `json:"icon,omitempty"`
	Distance float64 `json:"distance"`
}

// GET /api/documents/:id/related[?k=]
func (s *Server) relatedDocuments(c echo.Context) error {
	if s.vectors == nil {
		return apperror.NewNotImplemented("related pages are not enabled")
	}
	k := defaultRelated
	if raw := c.QueryParam("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return apperror.NewBadRequest("k must be a positive integer")
		}
		k = min(n, maxRelated)
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return apperror.FromStore(err, "document")
	}
	if doc == nil {
		return apperror.NewNotFound("document not found")
	}

	vec, err := s.embed(ctx, doc)
	if err != nil {
		return apperror.NewInternal(err)
	}
	out := []RelatedPage{}
	if vec == nil {
		return c.JSON(http.StatusOK, out)
	}

	hits, err := s.vectors.SimilarDocuments(ctx, vec, k+1)
	if err != nil {
		return apperror.FromStore(err, "document")
	}
	for _, h := range hits {
		if h.DocumentID == id || len(out) == k {
			continue
		}
		other, err := s.repo.GetDocument(ctx, h.DocumentID)
		if err != nil {
			return apperror.FromStore(err, "document")
		}
		if other == nil || other.IsArchived {
			continue
		}
		out = append(out, RelatedPage{ID: other.ID, Title: other.Title, Icon: other.Icon, Distance: h.Distance})
	}
	return c.JSON(http.StatusOK, out)
}

// embed builds the vector of a document from its title and text.
func (s *Server) embed(ctx context.Context, doc *store.DocumentRecord) ([]float32, error) {
	content, err := s.documentContent(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return textindex.Embed(doc.Title + "\n" + blocks.Text(content)), nil
}

// reindex refreshes a document's vector. Failures are logged; the write
// that triggered it has already succeeded.
func (s *Server) reindex(ctx context.Context, documentID string) {
	if s.vectors == nil {
		return
	}
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil || doc == nil {
		return
	}
	vec, err := s.embed(ctx, doc)
	if err == nil {
		err = s.vectors.IndexDocumentVector(ctx, documentID, vec)
	}
	if err != nil && !errors.Is(err, store.ErrVectorsUnsupported) {
		s.log.Warn().Err(err).Str("id", documentID).Msg("reindex failed")
	}
}
