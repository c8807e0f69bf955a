package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/kittpages/internal/server"
	"github.com/kittclouds/kittpages/internal/store"
	"github.com/kittclouds/kittpages/pkg/blocks"
	"github.com/kittclouds/kittpages/pkg/docstore"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(server.New(db).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/").WithHTTPClient(srv.Client())
}

func strPtr(s string) *string { return &s }

func TestDocumentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	require.NoError(t, c.Ping(ctx))

	doc, err := c.CreateDocument(ctx, &store.DocumentRecord{ID: "d1", Title: "Inbox"})
	require.NoError(t, err)
	assert.Equal(t, "Inbox", doc.Title)

	_, err = c.CreateDocument(ctx, &store.DocumentRecord{ID: "d2", Title: "Child", ParentID: "d1"})
	require.NoError(t, err)

	moved, err := c.UpdateDocument(ctx, "d2", store.DocumentFields{ParentID: strPtr("")})
	require.NoError(t, err)
	assert.Empty(t, moved.ParentID, "empty parent moves to root")

	got, err := c.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got)

	missing, err := c.GetDocument(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = c.UpdateDocument(ctx, "nope", store.DocumentFields{Title: strPtr("x")})
	assert.ErrorIs(t, err, store.ErrNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Type)

	require.NoError(t, c.DeleteDocument(ctx, "d1"))
	docs, err := c.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d2", docs[0].ID)

	_, err = c.Related(ctx, "d2", 3)
	assert.ErrorIs(t, err, store.ErrVectorsUnsupported)
}

func TestBlocksRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	_, err := c.CreateDocument(ctx, &store.DocumentRecord{ID: "d1"})
	require.NoError(t, err)

	_, err = c.CreateBlock(ctx, &store.BlockRecord{ID: "b1", DocumentID: "d1", Type: "text", Content: "hello"})
	require.NoError(t, err)
	out, err := c.UpsertBlocks(ctx, []*store.BlockRecord{
		{ID: "b0", DocumentID: "d1", Type: "h2", Content: "Intro", Position: 0},
		{ID: "b1", DocumentID: "d1", Type: "text", Content: "hello", Position: 1},
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	updated, err := c.UpdateBlock(ctx, "b1", store.BlockFields{Props: json.RawMessage(`{"textColor":"red"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"textColor":"red"}`, string(updated.Props))

	list, err := c.ListDocumentBlocks(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b0", list[0].ID)

	b, err := c.GetBlock(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "d1", b.DocumentID)

	require.NoError(t, c.DeleteBlock(ctx, "b0"))
	gone, err := c.GetBlock(ctx, "b0")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.ErrorIs(t, c.DeleteBlock(ctx, "b0"), store.ErrNotFound)
}

func TestDocstoreOverRemote(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	s := docstore.New(c)
	root, ok := s.CreateFromTemplate("meeting-notes", "")
	require.True(t, ok)
	child, _ := s.Create(root)
	s.InsertBlock(child, blocks.New("", blocks.TypeTodo, "follow up"), 0)
	s.Wait()

	other := docstore.New(c)
	require.NoError(t, other.FetchAll(ctx))
	assert.Equal(t, []string{root}, other.RootIDs())
	assert.Equal(t, []string{child}, other.Children(root))

	want, _ := s.Document(root)
	got, _ := other.Document(root)
	require.Len(t, got.Content, len(want.Content))
	for i := range want.Content {
		assert.Equal(t, want.Content[i].ID, got.Content[i].ID)
	}
	kid, _ := other.Document(child)
	require.Len(t, kid.Content, 2)
	assert.Equal(t, "follow up", kid.Content[0].Content)
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	_, err := NewClient(srv.URL).ListDocuments(context.Background())
	assert.Error(t, err)
}
