package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kittclouds/kittpages/internal/store"
	"github.com/kittclouds/kittpages/pkg/blocks"
	"github.com/kittclouds/kittpages/pkg/linkpreview"
	"github.com/kittclouds/kittpages/pkg/templates"
)

// fakeBackend delegates to a real store unless a hook is set.
type fakeBackend struct {
	store.Backend

	listDocuments  func(ctx context.Context) ([]*store.DocumentRecord, error)
	createDocument func(ctx context.Context, d *store.DocumentRecord) (*store.DocumentRecord, error)
	upsertBlocks   func(ctx context.Context, list []*store.BlockRecord) ([]*store.BlockRecord, error)
}

func (f *fakeBackend) ListDocuments(ctx context.Context) ([]*store.DocumentRecord, error) {
	if f.listDocuments != nil {
		return f.listDocuments(ctx)
	}
	return f.Backend.ListDocuments(ctx)
}

func (f *fakeBackend) CreateDocument(ctx context.Context, d *store.DocumentRecord) (*store.DocumentRecord, error) {
	if f.createDocument != nil {
		return f.createDocument(ctx, d)
	}
	return f.Backend.CreateDocument(ctx, d)
}

func (f *fakeBackend) UpsertBlocks(ctx context.Context, list []*store.BlockRecord) ([]*store.BlockRecord, error) {
	if f.upsertBlocks != nil {
		return f.upsertBlocks(ctx, list)
	}
	return f.Backend.UpsertBlocks(ctx, list)
}

func sequentialIDs() func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("id-%04d", atomic.AddInt64(&n, 1))
	}
}

func newBackend(t *testing.T) *store.SQLStore {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T, backend store.Backend, opts ...Option) *Store {
	t.Helper()
	clock := time.UnixMilli(1_700_000_000_000)
	base := []Option{
		WithIDGenerator(sequentialIDs()),
		WithClock(func() time.Time { return clock }),
	}
	s := New(backend, append(base, opts...)...)
	t.Cleanup(s.Wait)
	return s
}

// reload builds a second store from what the backend holds.
func reload(t *testing.T, backend store.Backend) *Store {
	t.Helper()
	s := New(backend)
	require.NoError(t, s.FetchAll(context.Background()))
	return s
}

// requireTree checks that every document is reachable exactly once from the
// root list and that children agree with parent ids.
func requireTree(t *testing.T, s *Store) {
	t.Helper()
	snap := s.Snapshot()
	seen := make(map[string]int)
	var visit func(ids []string, parentID string)
	visit = func(ids []string, parentID string) {
		for _, id := range ids {
			d, ok := snap.Documents[id]
			require.True(t, ok, "dangling child %s", id)
			require.Equal(t, parentID, d.ParentID, "parent of %s", id)
			seen[id]++
			require.Equal(t, 1, seen[id], "document %s reached twice", id)
			visit(d.Children, id)
		}
	}
	visit(snap.RootIDs, "")
	require.Len(t, seen, len(snap.Documents), "unreachable documents")
}

func treeShape(s *Store) []string {
	var out []string
	s.Walk(true, func(d Document, depth int) {
		out = append(out, fmt.Sprintf("%d:%s", depth, d.Title))
	})
	return out
}

func TestCreate(t *testing.T) {
	backend := newBackend(t)
	s := newTestStore(t, backend)

	root, ok := s.Create("")
	require.True(t, ok)
	child, ok := s.Create(root)
	require.True(t, ok)

	d, _ := s.Document(root)
	assert.True(t, d.IsExpanded, "parent is expanded")
	assert.Equal(t, []string{child}, d.Children)
	assert.Equal(t, store.FontDefault, d.FontStyle)

	c, _ := s.Document(child)
	require.Len(t, c.Content, 1)
	assert.Equal(t, blocks.TypeText, c.Content[0].Type)
	assert.Equal(t, root, c.ParentID)

	_, ok = s.Create("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, s.Len())
	requireTree(t, s)

	s.Wait()
	other := reload(t, backend)
	requireTree(t, other)
	assert.Equal(t, []string{root}, other.RootIDs())
	assert.Equal(t, []string{child}, other.Children(root))
	got, _ := other.Document(root)
	assert.True(t, got.IsExpanded)
	assert.Len(t, got.Content, 1)
}

func TestCreateFromTemplate(t *testing.T) {
	backend := newBackend(t)
	s := newTestStore(t, backend)

	tpl, ok := templates.Default().Get("project-plan")
	require.True(t, ok)

	id, ok := s.CreateFromTemplate("project-plan", "")
	require.True(t, ok)
	d, _ := s.Document(id)
	assert.Equal(t, tpl.Title, d.Title)
	assert.Equal(t, tpl.Icon, d.Icon)
	require.Len(t, d.Content, tpl.Len())

	ids := make(map[string]bool)
	blocks.Walk(d.Content, func(b blocks.Block, _ int) {
		assert.NotEmpty(t, b.ID)
		assert.False(t, ids[b.ID], "duplicate block id %s", b.ID)
		ids[b.ID] = true
	})

	_, ok = s.CreateFromTemplate("nope", "")
	assert.False(t, ok)

	s.Wait()
	got, _ := reload(t, backend).Document(id)
	require.Len(t, got.Content, tpl.Len())
	for i := range d.Content {
		assert.Equal(t, d.Content[i].ID, got.Content[i].ID)
		assert.Equal(t, d.Content[i].Type, got.Content[i].Type)
	}
	var nested int
	blocks.Walk(got.Content, func(blocks.Block, int) { nested++ })
	assert.Equal(t, len(ids), nested, "column blocks survive the round trip")
}

func TestCreatePage(t *testing.T) {
	backend := newBackend(t)
	s := newTestStore(t, backend)

	id, ok := s.CreatePage("", "Imported", []blocks.Block{
		blocks.New("", blocks.TypeH1, "Heading"),
		blocks.New("keep", blocks.Type("bogus"), "body"),
	})
	require.True(t, ok)
	d, _ := s.Document(id)
	assert.Equal(t, "Imported", d.Title)
	require.Len(t, d.Content, 2)
	assert.NotEmpty(t, d.Content[0].ID)
	assert.Equal(t, "keep", d.Content[1].ID)
	assert.Equal(t, blocks.TypeText, d.Content[1].Type)

	empty, ok := s.CreatePage("", "", nil)
	require.True(t, ok)
	e, _ := s.Document(empty)
	assert.Len(t, e.Content, 1)

	s.Wait()
	got, _ := reload(t, backend).Document(id)
	assert.Equal(t, "Heading", got.Content[0].Content)
}

func TestUpdateAndToggles(t *testing.T) {
	backend := newBackend(t)
	s := newTestStore(t, backend)
	id, _ := s.Create("")

	assert.True(t, s.Update(id, Fields{Title: ptr("Roadmap"), Icon: ptr("🚀")}))
	assert.False(t, s.Update(id, Fields{}))
	assert.False(t, s.Update("missing", Fields{Title: ptr("x")}))

	assert.True(t, s.ToggleFavorite(id))
	assert.True(t, s.TogglePublished(id))
	assert.True(t, s.ToggleFullWidth(id))
	assert.True(t, s.ToggleLocked(id))
	assert.True(t, s.SetFontStyle(id, store.FontSerif))
	assert.False(t, s.SetFontStyle(id, "comic"))
	assert.False(t, s.ToggleFavorite("missing"))

	d, _ := s.Document(id)
	assert.Equal(t, "Roadmap", d.Title)
	assert.True(t, d.IsFavorite)
	assert.True(t, d.IsPublished)
	assert.True(t, d.IsFullWidth)
	assert.True(t, d.IsLocked)
	assert.Equal(t, store.FontSerif, d.FontStyle)
	assert.Len(t, s.Favorites(), 1)

	s.Wait()
	got, _ := reload(t, backend).Document(id)
	assert.Equal(t, "Roadmap", got.Title)
	assert.Equal(t, "🚀", got.Icon)
	assert.True(t, got.IsFavorite)
	assert.Equal(t, store.FontSerif, got.FontStyle)
}

func TestArchiveRestore(t *testing.T) {
	backend := newBackend(t)
	s := newTestStore(t, backend)
	id, _ := s.Create("")
	child, _ := s.Create(id)
	s.ToggleFavorite(id)

	require.True(t, s.Archive(id))
	d, _ := s.Document(id)
	assert.True(t, d.IsArchived)
	assert.False(t, d.IsFavorite, "archiving clears favorite")
	assert.Empty(t, s.Favorites())
	assert.Len(t, s.Archived(), 1)

	var visible []string
	s.Walk(false, func(d Document, _ int) { visible = append(visible, d.ID) })
	assert.Empty(t, visible, "archived subtree hidden")
	assert.Equal(t, 2, s.Len(), "archive keeps the tree")
	assert.Equal(t, []string{child}, s.Children(id))

	require.True(t, s.Restore(id))
	d, _ = s.Document(id)
	assert.False(t, d.IsArchived)
	assert.False(t, d.IsFavorite)

	s.Wait()
	got, _ := reload(t, backend).Document(id)
	assert.False(t, got.IsArchived)
}

func TestPermanentlyDelete(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	s := newTestStore(t, backend)

	keep, _ := s.Create("")
	root, _ := s.Create("")
	child, _ := s.Create(root)
	s.Create(child)
	s.Create(root)
	s.Wait()

	require.True(t, s.PermanentlyDelete(root))
	assert.False(t, s.PermanentlyDelete(root))
	assert.Equal(t, []string{keep}, s.RootIDs())
	assert.Equal(t, 1, s.Len())
	requireTree(t, s)

	s.Wait()
	docs, err := backend.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, keep, docs[0].ID)
	all, err := backend.ListBlocks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "blocks of deleted documents are removed")
}

func TestMove(t *testing.T) {
	backend := newBackend(t)
	s := newTestStore(t, backend)

	a, _ := s.Create("")
	b, _ := s.Create("")
	a1, _ := s.Create(a)
	a2, _ := s.Create(a)
	a11, _ := s.Create(a1)
	for id, title := range map[string]string{a: "a", b: "b", a1: "a1", a2: "a2", a11: "a11"} {
		s.Update(id, Fields{Title: ptr(title)})
	}
	s.Wait()

	assert.False(t, s.Move(a, a11, 0), "cannot move into own subtree")
	assert.False(t, s.Move(a, a, 0), "cannot move under itself")
	assert.False(t, s.Move("missing", "", 0))
	assert.False(t, s.Move(a1, "missing", 0))
	assert.False(t, s.Move(a1, a, 0), "same place")
	requireTree(t, s)

	// moves of different documents rewrite shared sibling positions, so
	// each one is allowed to land before the next
	require.True(t, s.Move(a2, "", 0))
	assert.Equal(t, []string{a2, a, b}, s.RootIDs())
	assert.Equal(t, []string{a1}, s.Children(a))
	s.Wait()

	require.True(t, s.Move(a1, b, 99), "index clamped")
	assert.Equal(t, []string{a1}, s.Children(b))
	assert.Empty(t, s.Children(a))
	s.Wait()

	require.True(t, s.Move(b, "", 0))
	requireTree(t, s)
	want := []string{"0:b", "1:a1", "2:a11", "0:a2", "0:a"}
	assert.Equal(t, want, treeShape(s))

	s.Wait()
	other := reload(t, backend)
	requireTree(t, other)
	assert.Equal(t, want, treeShape(other))
}

func TestDuplicate(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	s := newTestStore(t, backend)

	root, _ := s.CreateFromTemplate("project-plan", "")
	child, _ := s.Create(root)
	s.Update(child, Fields{Title: ptr("Notes")})
	grand, _ := s.CreateFromTemplate("todo-list", child)
	sibling, _ := s.Create("")
	s.Wait()

	_, err := s.Duplicate(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	before := s.Snapshot()
	copyID, err := s.Duplicate(ctx, root)
	require.NoError(t, err)
	s.Wait()

	requireTree(t, s)
	assert.Equal(t, []string{root, sibling, copyID}, s.RootIDs())
	top, _ := s.Document(copyID)
	orig := before.Documents[root]
	assert.Equal(t, orig.Title+CopySuffix, top.Title)
	require.Len(t, top.Children, 1)
	assert.NotEqual(t, child, top.Children[0])

	copyChild, _ := s.Document(top.Children[0])
	assert.Equal(t, "Notes", copyChild.Title)
	require.Len(t, copyChild.Children, 1)
	copyGrand, _ := s.Document(copyChild.Children[0])
	assert.Equal(t, before.Documents[grand].Title, copyGrand.Title)

	origIDs := make(map[string]bool)
	for _, d := range before.Documents {
		origIDs[d.ID] = true
		blocks.Walk(d.Content, func(b blocks.Block, _ int) { origIDs[b.ID] = true })
	}
	for _, pair := range [][2]Document{{orig, top}, {before.Documents[grand], copyGrand}} {
		src, dst := pair[0], pair[1]
		assert.False(t, origIDs[dst.ID])
		require.Len(t, dst.Content, len(src.Content))
		var srcBlocks, dstBlocks []blocks.Block
		blocks.Walk(src.Content, func(b blocks.Block, _ int) { srcBlocks = append(srcBlocks, b) })
		blocks.Walk(dst.Content, func(b blocks.Block, _ int) { dstBlocks = append(dstBlocks, b) })
		require.Len(t, dstBlocks, len(srcBlocks))
		for i := range srcBlocks {
			assert.False(t, origIDs[dstBlocks[i].ID], "block id reused")
			assert.Equal(t, srcBlocks[i].Type, dstBlocks[i].Type)
			assert.Equal(t, srcBlocks[i].Content, dstBlocks[i].Content)
			assert.Equal(t, propsJSON(t, srcBlocks[i].Props), propsJSON(t, dstBlocks[i].Props))
		}
	}

	docs, err := backend.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 7)

	// the original is untouched
	again, _ := s.Document(root)
	assert.Equal(t, orig.Title, again.Title)
	assert.Equal(t, []string{child}, again.Children)
}

func TestUndoRedo(t *testing.T) {
	s := newTestStore(t, newBackend(t))

	assert.False(t, s.CanUndo())
	id, _ := s.Create("")
	s.Update(id, Fields{Title: ptr("one")})
	s.Update(id, Fields{Title: ptr("two")})

	require.True(t, s.Undo())
	d, _ := s.Document(id)
	assert.Equal(t, "one", d.Title)
	assert.True(t, s.CanRedo())

	require.True(t, s.Redo())
	d, _ = s.Document(id)
	assert.Equal(t, "two", d.Title)

	s.Undo()
	s.Undo()
	s.Undo()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Undo())

	s.Redo()
	s.Create("")
	assert.False(t, s.CanRedo(), "new mutation clears redo")
}

func TestHistoryLimit(t *testing.T) {
	s := newTestStore(t, newBackend(t), WithHistoryLimit(2))
	id, _ := s.Create("")
	for i := 0; i < 5; i++ {
		s.Update(id, Fields{Title: ptr(fmt.Sprint(i))})
	}
	assert.True(t, s.Undo())
	assert.True(t, s.Undo())
	assert.False(t, s.Undo())
	d, _ := s.Document(id)
	assert.Equal(t, "2", d.Title)
}

func TestFetchFailureKeepsState(t *testing.T) {
	boom := errors.New("offline")
	fake := &fakeBackend{Backend: newBackend(t)}
	s := newTestStore(t, fake)
	id, _ := s.Create("")
	s.Wait()

	fake.listDocuments = func(context.Context) ([]*store.DocumentRecord, error) { return nil, boom }
	err := s.FetchAll(context.Background())
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Err(), boom)
	_, ok := s.Document(id)
	assert.True(t, ok)

	fake.listDocuments = nil
	require.NoError(t, s.FetchAll(context.Background()))
	assert.NoError(t, s.Err())
	assert.True(t, s.CanUndo(), "fetch does not clear history")
}

// propsJSON normalises props through JSON and drops the ids of blocks nested
// in columns, which Duplicate regenerates.
func propsJSON(t *testing.T, p blocks.Props) any {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	var v any
	require.NoError(t, json.Unmarshal(data, &v))
	if m, ok := v.(map[string]any); ok {
		dropIDs(m[blocks.PropColumns])
	}
	return v
}

func dropIDs(v any) {
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			dropIDs(e)
		}
	case map[string]any:
		delete(t, "id")
		for _, e := range t {
			dropIDs(e)
		}
	}
}

func TestDuplicateKeepsPagesStillSyncing(t *testing.T) {
	ctx := context.Background()
	fake := &fakeBackend{Backend: newBackend(t)}
	s := newTestStore(t, fake)
	src, _ := s.Create("")
	s.Wait()

	release := make(chan struct{})
	var held atomic.Bool
	fake.createDocument = func(ctx context.Context, d *store.DocumentRecord) (*store.DocumentRecord, error) {
		if held.CompareAndSwap(false, true) {
			<-release
		}
		return fake.Backend.CreateDocument(ctx, d)
	}
	pending, ok := s.Create("")
	require.True(t, ok)

	done := make(chan string, 1)
	go func() {
		id, err := s.Duplicate(ctx, src)
		assert.NoError(t, err)
		done <- id
	}()
	_, ok = s.Document(pending)
	assert.True(t, ok)

	close(release)
	copyID := <-done
	s.Wait()

	_, ok = s.Document(pending)
	assert.True(t, ok, "page created before Duplicate was dropped by the refetch")
	assert.Equal(t, []string{src, pending, copyID}, s.RootIDs())
	requireTree(t, s)
}

func TestCreateWithUnencodableContentKeepsOneBlock(t *testing.T) {
	backend := newBackend(t)
	var mu sync.Mutex
	var reported []SyncError
	s := newTestStore(t, backend, WithSyncErrorHandler(func(e SyncError) {
		mu.Lock()
		reported = append(reported, e)
		mu.Unlock()
	}))

	bad := blocks.New("", blocks.TypeText, "x")
	bad.Props = blocks.Props{"width": math.Inf(1)}
	id, ok := s.CreatePage("", "Broken", []blocks.Block{bad})
	require.True(t, ok)
	s.Wait()

	mu.Lock()
	require.Len(t, reported, 1)
	assert.Equal(t, "create", reported[0].Op)
	mu.Unlock()

	doc, err := backend.GetDocument(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	recs, err := backend.ListDocumentBlocks(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(blocks.TypeText), recs[0].Type)
	assert.Empty(t, recs[0].Content)
}

func TestSyncErrorIsReportedNotRolledBack(t *testing.T) {
	boom := errors.New("write refused")
	fake := &fakeBackend{Backend: newBackend(t)}
	fake.createDocument = func(context.Context, *store.DocumentRecord) (*store.DocumentRecord, error) {
		return nil, boom
	}

	var mu sync.Mutex
	var reported []SyncError
	s := newTestStore(t, fake, WithSyncErrorHandler(func(e SyncError) {
		mu.Lock()
		reported = append(reported, e)
		mu.Unlock()
	}))

	id, ok := s.Create("")
	require.True(t, ok)
	s.Wait()

	_, ok = s.Document(id)
	assert.True(t, ok, "local change kept")
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.Equal(t, "create", reported[0].Op)
	assert.Equal(t, id, reported[0].ID)
	assert.ErrorIs(t, reported[0], boom)
}

func TestFetchAllPromotesOrphansAndCycles(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	for _, r := range []*store.DocumentRecord{
		{ID: "root", Title: "root"},
		{ID: "kid", Title: "kid", ParentID: "root"},
		{ID: "orphan", Title: "orphan", ParentID: "gone", Position: 1},
		{ID: "x", Title: "x", ParentID: "y"},
		{ID: "y", Title: "y", ParentID: "x"},
	} {
		_, err := backend.CreateDocument(ctx, r)
		require.NoError(t, err)
	}
	_, err := backend.CreateBlock(ctx, &store.BlockRecord{ID: "lost", DocumentID: "nobody", Type: "text"})
	require.NoError(t, err)

	s := reload(t, backend)
	requireTree(t, s)
	assert.Equal(t, 5, s.Len())
	assert.Contains(t, s.RootIDs(), "orphan")
	assert.Equal(t, []string{"kid"}, s.Children("root"))
}

func TestFetchAllOrdersByPosition(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	for _, r := range []*store.DocumentRecord{
		{ID: "c", Position: 2},
		{ID: "a", Position: 0},
		{ID: "b", Position: 1},
	} {
		_, err := backend.CreateDocument(ctx, r)
		require.NoError(t, err)
	}
	for _, r := range []*store.BlockRecord{
		{ID: "b2", DocumentID: "a", Type: "text", Content: "second", Position: 1},
		{ID: "b1", DocumentID: "a", Type: "text", Content: "first", Position: 0},
	} {
		_, err := backend.CreateBlock(ctx, r)
		require.NoError(t, err)
	}

	s := reload(t, backend)
	assert.Equal(t, []string{"a", "b", "c"}, s.RootIDs())
	d, _ := s.Document("a")
	require.Len(t, d.Content, 2)
	assert.Equal(t, "first", d.Content[0].Content)
}

func TestBlockOperations(t *testing.T) {
	backend := newBackend(t)
	s := newTestStore(t, backend)
	doc, _ := s.Create("")
	d, _ := s.Document(doc)
	first := d.Content[0].ID
	s.Wait()

	h1, ok := s.InsertBlock(doc, blocks.New("", blocks.TypeH1, "Title"), 0)
	require.True(t, ok)
	assert.NotEmpty(t, h1)
	todo, _ := s.InsertBlock(doc, blocks.Block{Type: blocks.TypeTodo, Content: "ship"}, 99)
	_, ok = s.InsertBlock("missing", blocks.Block{}, 0)
	assert.False(t, ok)
	s.Wait()

	assert.True(t, s.UpdateBlock(doc, todo, blocks.Patch{Props: blocks.Props{blocks.PropChecked: true}}))
	assert.False(t, s.UpdateBlock(doc, "missing", blocks.Patch{Content: ptr("x")}))
	assert.False(t, s.UpdateBlock(doc, todo, blocks.Patch{}))

	dup, ok := s.DuplicateBlock(doc, h1)
	require.True(t, ok)
	assert.NotEqual(t, h1, dup)
	s.Wait()

	require.True(t, s.MoveBlock(doc, 3, 0))
	assert.False(t, s.MoveBlock(doc, 7, 0))
	s.Wait()
	require.True(t, s.DeleteBlock(doc, first))
	assert.False(t, s.DeleteBlock(doc, first))

	d, _ = s.Document(doc)
	order := make([]string, len(d.Content))
	for i, b := range d.Content {
		order[i] = b.ID
	}
	assert.Equal(t, []string{todo, h1, dup}, order)
	assert.True(t, blocks.Checked(d.Content[0]))

	s.Wait()
	got, _ := reload(t, backend).Document(doc)
	require.Len(t, got.Content, 3)
	for i, b := range got.Content {
		assert.Equal(t, order[i], b.ID)
	}
	assert.True(t, blocks.Checked(got.Content[0]))
	assert.Equal(t, "Title", got.Content[2].Content)
}

func TestBlockUndo(t *testing.T) {
	s := newTestStore(t, newBackend(t))
	doc, _ := s.Create("")
	id, _ := s.InsertBlock(doc, blocks.New("", blocks.TypeBullet, "x"), 1)
	require.True(t, s.Undo())
	d, _ := s.Document(doc)
	_, found := blocks.Find(d.Content, id)
	assert.False(t, found)
}

func TestSubscribe(t *testing.T) {
	s := newTestStore(t, newBackend(t))
	var calls int32
	unsubscribe := s.Subscribe(func() {
		atomic.AddInt32(&calls, 1)
		s.Len()
	})
	id, _ := s.Create("")
	s.ToggleFavorite(id)
	s.Update("missing", Fields{Title: ptr("x")})
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	unsubscribe()
	s.Create("")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPath(t *testing.T) {
	s := newTestStore(t, newBackend(t))
	a, _ := s.Create("")
	b, _ := s.Create(a)
	c, _ := s.Create(b)
	path := s.Path(c)
	require.Len(t, path, 3)
	assert.Equal(t, a, path[0].ID)
	assert.Equal(t, c, path[2].ID)
	assert.Empty(t, s.Path("missing"))
}

func TestBacklinks(t *testing.T) {
	s := newTestStore(t, newBackend(t))
	target, _ := s.Create("")
	s.Update(target, Fields{Title: ptr("Quarterly Planning")})

	linker, _ := s.Create("")
	s.InsertBlock(linker, blocks.New("", blocks.TypePage, target), 0)
	mentioner, _ := s.Create("")
	s.InsertBlock(mentioner, blocks.New("", blocks.TypeText, "see <b>quarterly planning</b> notes"), 0)
	unrelated, _ := s.Create("")
	s.InsertBlock(unrelated, blocks.New("", blocks.TypeText, "quarterly review"), 0)
	archived, _ := s.Create("")
	s.InsertBlock(archived, blocks.New("", blocks.TypePage, target), 0)
	s.Archive(archived)

	var ids []string
	for _, d := range s.Backlinks(target) {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{linker, mentioner}, ids)
	assert.Nil(t, s.Backlinks("missing"))
}

type stubPreviewer struct {
	preview linkpreview.Preview
	err     error
}

func (p stubPreviewer) Fetch(_ context.Context, _, rawURL string) (linkpreview.Preview, error) {
	out := p.preview
	out.URL = rawURL
	return out, p.err
}

func TestFetchBookmarkPreview(t *testing.T) {
	backend := newBackend(t)
	s := newTestStore(t, backend, WithPreviewer(stubPreviewer{preview: linkpreview.Preview{
		Title: "Example", SiteName: "example.com",
	}}))
	doc, _ := s.Create("")
	bm, _ := s.InsertBlock(doc, blocks.Block{
		Type:    blocks.TypeBookmark,
		Content: "https://example.com",
		Props:   blocks.Props{"caption": "kept"},
	}, 0)
	s.Wait()

	d, _ := s.Document(doc)
	require.True(t, s.FetchBookmarkPreview(doc, bm))
	assert.False(t, s.FetchBookmarkPreview(doc, d.Content[1].ID), "not a bookmark")
	s.Wait()

	d, _ = s.Document(doc)
	b, _ := blocks.Find(d.Content, bm)
	assert.Equal(t, "Example", b.Props[PropBookmarkTitle])
	assert.Equal(t, "example.com", b.Props[PropBookmarkSiteName])
	assert.Equal(t, "kept", b.Props["caption"])

	got, _ := reload(t, backend).Document(doc)
	stored, _ := blocks.Find(got.Content, bm)
	assert.Equal(t, "Example", stored.Props[PropBookmarkTitle])
}

func TestFetchBookmarkPreviewIgnoresSuperseded(t *testing.T) {
	s := newTestStore(t, newBackend(t), WithPreviewer(stubPreviewer{err: linkpreview.ErrSuperseded}))
	doc, _ := s.Create("")
	bm, _ := s.InsertBlock(doc, blocks.New("", blocks.TypeBookmark, "https://example.com"), 0)
	require.True(t, s.FetchBookmarkPreview(doc, bm))
	s.Wait()
	d, _ := s.Document(doc)
	b, _ := blocks.Find(d.Content, bm)
	assert.Empty(t, b.Props)

	assert.False(t, newTestStore(t, newBackend(t)).FetchBookmarkPreview(doc, bm), "no previewer")
}
