package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kittclouds/kittpages/internal/apperror"
	"github.com/kittclouds/kittpages/internal/store"
	"github.com/kittclouds/kittpages/pkg/blocks"
)

// =============================================================================
// Documents
// =============================================================================

// GET /api/documents
func (s *Server) listDocuments(c echo.Context) error {
	docs, err := s.repo.ListDocuments(c.Request().Context())
	if err != nil {
		return apperror.FromStore(err, "documents")
	}
	if docs == nil {
		docs = []*store.DocumentRecord{}
	}
	return c.JSON(http.StatusOK, docs)
}

// GET /api/documents/:id
func (s *Server) getDocument(c echo.Context) error {
	doc, err := s.repo.GetDocument(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperror.FromStore(err, "document")
	}
	if doc == nil {
		return apperror.NewNotFound("document not found")
	}
	return c.JSON(http.StatusOK, doc)
}

// POST /api/documents
func (s *Server) createDocument(c echo.Context) error {
	var req store.DocumentRecord
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.ID == "" {
		return apperror.NewValidation("document id is required")
	}
	if req.FontStyle != "" && !store.ValidFontStyle(req.FontStyle) {
		return apperror.NewValidation("unknown font style")
	}

	ctx := c.Request().Context()
	doc, err := s.repo.CreateDocument(ctx, &req)
	if err != nil {
		return apperror.FromStore(err, "document")
	}
	s.reindex(ctx, doc.ID)
	return c.JSON(http.StatusCreated, doc)
}

// PATCH /api/documents/:id
func (s *Server) updateDocument(c echo.Context) error {
	var fields store.DocumentFields
	if err := c.Bind(&fields); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if fields.FontStyle != nil && !store.ValidFontStyle(*fields.FontStyle) {
		return apperror.NewValidation("unknown font style")
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	doc, err := s.repo.UpdateDocument(ctx, id, fields)
	if err != nil {
		return apperror.FromStore(err, "document")
	}
	s.invalidate(ctx, id)
	if fields.Title != nil {
		s.reindex(ctx, id)
	}
	return c.JSON(http.StatusOK, doc)
}

// DELETE /api/documents/:id
func (s *Server) deleteDocument(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		return apperror.FromStore(err, "document")
	}
	s.invalidate(ctx, id)
	return c.NoContent(http.StatusNoContent)
}

// =============================================================================
// Blocks
// =============================================================================

// GET /api/blocks[?documentId=]
func (s *Server) listBlocks(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		list []*store.BlockRecord
		err  error
	)
	if docID := c.QueryParam("documentId"); docID != "" {
		list, err = s.repo.ListDocumentBlocks(ctx, docID)
	} else {
		list, err = s.repo.ListBlocks(ctx)
	}
	if err != nil {
		return apperror.FromStore(err, "blocks")
	}
	if list == nil {
		list = []*store.BlockRecord{}
	}
	return c.JSON(http.StatusOK, list)
}

// GET /api/blocks/:id
func (s *Server) getBlock(c echo.Context) error {
	b, err := s.repo.GetBlock(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperror.FromStore(err, "block")
	}
	if b == nil {
		return apperror.NewNotFound("block not found")
	}
	return c.JSON(http.StatusOK, b)
}

func validateBlock(b *store.BlockRecord) *apperror.AppError {
	if b.ID == "" || b.DocumentID == "" {
		return apperror.NewValidation("block id and documentId are required")
	}
	if !blocks.Type(b.Type).Valid() {
		return apperror.NewValidation("unknown block type " + b.Type)
	}
	return nil
}

// POST /api/blocks
func (s *Server) createBlock(c echo.Context) error {
	var req store.BlockRecord
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if appErr := validateBlock(&req); appErr != nil {
		return appErr
	}

	ctx := c.Request().Context()
	b, err := s.repo.CreateBlock(ctx, &req)
	if err != nil {
		return apperror.FromStore(err, "block")
	}
	s.touched(ctx, b.DocumentID)
	return c.JSON(http.StatusCreated, b)
}

// PUT /api/blocks
func (s *Server) upsertBlocks(c echo.Context) error {
	var req []*store.BlockRecord
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	for _, b := range req {
		if b == nil {
			return apperror.NewValidation("null block")
		}
		if appErr := validateBlock(b); appErr != nil {
			return appErr
		}
	}

	ctx := c.Request().Context()
	out, err := s.repo.UpsertBlocks(ctx, req)
	if err != nil {
		return apperror.FromStore(err, "blocks")
	}
	seen := make(map[string]bool)
	for _, b := range out {
		if !seen[b.DocumentID] {
			seen[b.DocumentID] = true
			s.touched(ctx, b.DocumentID)
		}
	}
	if out == nil {
		out = []*store.BlockRecord{}
	}
	return c.JSON(http.StatusOK, out)
}

// PATCH /api/blocks/:id
func (s *Server) updateBlock(c echo.Context) error {
	var fields store.BlockFields
	if err := c.Bind(&fields); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if fields.Type != nil && !blocks.Type(*fields.Type).Valid() {
		return apperror.NewValidation("unknown block type " + *fields.Type)
	}

	ctx := c.Request().Context()
	b, err := s.repo.UpdateBlock(ctx, c.Param("id"), fields)
	if err != nil {
		return apperror.FromStore(err, "block")
	}
	s.touched(ctx, b.DocumentID)
	return c.JSON(http.StatusOK, b)
}

// DELETE /api/blocks/:id
func (s *Server) deleteBlock(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	existing, err := s.repo.GetBlock(ctx, id)
	if err != nil {
		return apperror.FromStore(err, "block")
	}
	if err := s.repo.DeleteBlock(ctx, id); err != nil {
		return apperror.FromStore(err, "block")
	}
	if existing != nil {
		s.touched(ctx, existing.DocumentID)
	}
	return c.NoContent(http.StatusNoContent)
}

// touched drops the cached preview of a document whose content changed and
// re-embeds it.
func (s *Server) touched(ctx context.Context, documentID string) {
	s.invalidate(ctx, documentID)
	s.reindex(ctx, documentID)
}

func (s *Server) invalidate(ctx context.Context, documentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, documentID); err != nil {
		s.log.Warn().Err(err).Str("id", documentID).Msg("preview cache invalidation failed")
	}
}
