package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/kittpages/internal/cache"
	"github.com/kittclouds/kittpages/internal/store"
	"github.com/kittclouds/kittpages/pkg/slug"
)

const docID = "0b6f1f6e-8a42-4b5e-9a67-2a1f4f0f6c11"

func newTestServer(t *testing.T, opts ...Option) (*Server, *store.SQLStore) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, opts...), db
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func ptr[T any](v T) *T { return &v }

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDocumentCRUD(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/documents", store.DocumentRecord{ID: docID, Title: "Plan"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[store.DocumentRecord](t, rec)
	assert.Equal(t, store.FontDefault, created.FontStyle)
	assert.NotZero(t, created.CreatedAt)

	rec = do(t, s, http.MethodPatch, "/api/documents/"+docID, store.DocumentFields{Title: ptr("Renamed"), IsFavorite: ptr(true)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[store.DocumentRecord](t, rec)
	assert.Equal(t, "Renamed", updated.Title)
	assert.True(t, updated.IsFavorite)

	rec = do(t, s, http.MethodGet, "/api/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.DocumentRecord](t, rec), 1)

	rec = do(t, s, http.MethodDelete, "/api/documents/"+docID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/documents/"+docID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrors(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPatch, "/api/documents/missing", store.DocumentFields{Title: ptr("x")})
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not_found", body["type"])
	assert.Equal(t, "document not found", body["message"])

	rec = do(t, s, http.MethodPost, "/api/documents", store.DocumentRecord{Title: "no id"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/blocks", store.BlockRecord{ID: "b", DocumentID: docID, Type: "marquee"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	raw := httptest.NewRecorder()
	s.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	rec = do(t, s, http.MethodGet, "/nowhere", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[map[string]string](t, rec)["type"])

	rec = do(t, s, http.MethodGet, "/api/documents/"+docID+"/related", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestBlockRoutes(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/documents", store.DocumentRecord{ID: docID})

	rec := do(t, s, http.MethodPost, "/api/blocks", store.BlockRecord{
		ID: "b1", DocumentID: docID, Type: "todo", Content: "ship", Props: json.RawMessage(`{"checked":false}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPut, "/api/blocks", []store.BlockRecord{
		{ID: "b0", DocumentID: docID, Type: "h1", Content: "Title", Position: 0},
		{ID: "b1", DocumentID: docID, Type: "todo", Content: "ship", Position: 1},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]store.BlockRecord](t, rec), 2)

	rec = do(t, s, http.MethodPatch, "/api/blocks/b1", store.BlockFields{Props: json.RawMessage(`{"checked":true}`)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"checked":true}`, string(decode[store.BlockRecord](t, rec).Props))

	rec = do(t, s, http.MethodGet, "/api/blocks?documentId="+docID, nil)
	list := decode[[]store.BlockRecord](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "b0", list[0].ID)

	rec = do(t, s, http.MethodGet, "/api/blocks/b1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, docID, decode[store.BlockRecord](t, rec).DocumentID)

	rec = do(t, s, http.MethodDelete, "/api/blocks/b0", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/blocks/b0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/blocks/b0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/blocks", nil)
	assert.Len(t, decode[[]store.BlockRecord](t, rec), 1)
}

func seedPublished(t *testing.T, db *store.SQLStore, published bool) {
	t.Helper()
	ctx := context.Background()
	_, err := db.CreateDocument(ctx, &store.DocumentRecord{ID: docID, Title: "Launch Plan", IsPublished: published})
	require.NoError(t, err)
	_, err = db.UpsertBlocks(ctx, []*store.BlockRecord{
		{ID: "h", DocumentID: docID, Type: "h1", Content: "Goals", Position: 0},
		{ID: "x", DocumentID: docID, Type: "text", Content: `hi <script>alert(1)</script><b>there</b>`, Position: 1},
		{ID: "n1", DocumentID: docID, Type: "number", Content: "one", Position: 2},
		{ID: "n2", DocumentID: docID, Type: "number", Content: "two", Position: 3},
		{ID: "t", DocumentID: docID, Type: "toggle", Content: "more", Props: json.RawMessage(`{"isOpen":false}`), Position: 4},
		{ID: "in", DocumentID: docID, Type: "text", Content: "inside", Props: json.RawMessage(`{"level":1}`), Position: 5},
		{ID: "img", DocumentID: docID, Type: "image", Content: "javascript:alert(1)", Position: 6},
	})
	require.NoError(t, err)
}

func TestPublishedPage(t *testing.T) {
	s, db := newTestServer(t)
	seedPublished(t, db, true)

	rec := do(t, s, http.MethodGet, slug.PreviewPath("Launch Plan", docID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[PublishedPage](t, rec)

	assert.Equal(t, "Launch Plan", page.Title)
	assert.Equal(t, "/preview/launch-plan-"+slug.Compact(docID), page.Path)
	require.Len(t, page.Blocks, 7)
	assert.Equal(t, "hi <b>there</b>", page.Blocks[1].Content)
	assert.Equal(t, 1, page.Blocks[2].Number)
	assert.Equal(t, 2, page.Blocks[3].Number)
	assert.True(t, page.Blocks[3].Grouped)
	assert.True(t, page.Blocks[5].Hidden)
	assert.False(t, page.Blocks[4].Hidden)
	assert.Empty(t, page.Blocks[6].Content)
	require.Len(t, page.Headings, 1)
	assert.Equal(t, "Goals", page.Headings[0].Text)

	rec = do(t, s, http.MethodGet, "/preview/not-a-slug", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnpublishedPageIsHidden(t *testing.T) {
	s, db := newTestServer(t)
	seedPublished(t, db, false)
	rec := do(t, s, http.MethodGet, "/preview/"+docID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishedPageCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s, db := newTestServer(t, WithPreviewCache(cache.New(client, time.Minute)))
	seedPublished(t, db, true)
	path := "/preview/" + slug.Compact(docID)

	rec := do(t, s, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))

	rec = do(t, s, http.MethodGet, path, nil)
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	assert.Equal(t, "Launch Plan", decode[PublishedPage](t, rec).Title)

	rec = do(t, s, http.MethodPatch, "/api/documents/"+docID, store.DocumentFields{Title: ptr("Launch v2")})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, path, nil)
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	assert.Equal(t, "Launch v2", decode[PublishedPage](t, rec).Title)

	rec = do(t, s, http.MethodPatch, "/api/blocks/h", store.BlockFields{Content: ptr("Aims")})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodGet, path, nil)
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	assert.Equal(t, "Aims", decode[PublishedPage](t, rec).Headings[0].Text)
}

func TestRelatedDocuments(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if !db.VectorsEnabled() {
		t.Skip("sqlite-vec not available")
	}
	s := New(db, WithVectorIndex(db))

	docs := []struct{ id, title, text string }{
		{"a", "Garden", "tomatoes basil compost watering seedlings"},
		{"b", "Vegetables", "tomatoes compost seedlings raised beds"},
		{"c", "Taxes", "invoices receipts deductions accountant"},
	}
	for i, d := range docs {
		rec := do(t, s, http.MethodPost, "/api/documents", store.DocumentRecord{ID: d.id, Title: d.title, Position: i})
		require.Equal(t, http.StatusCreated, rec.Code)
		rec = do(t, s, http.MethodPost, "/api/blocks", store.BlockRecord{ID: "blk-" + d.id, DocumentID: d.id, Type: "text", Content: d.text})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/api/documents/a/related?k=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	related := decode[[]RelatedPage](t, rec)
	require.Len(t, related, 1)
	assert.Equal(t, "b", related[0].ID)

	rec = do(t, s, http.MethodGet, "/api/documents/a/related?k=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/documents/missing/related", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
