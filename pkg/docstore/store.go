// Package docstore holds the in-memory page tree and every mutation on it.
//
// Each mutator applies its change to local state synchronously, records the
// previous state for undo, notifies subscribers, and then syncs the change
// to the backend in a goroutine. Writes for the same document are applied
// in order; writes for different documents may land in any order. Sync
// failures are logged and reported through the sync error handler. The
// local change is never rolled back, so local state may diverge from the
// backend until the next FetchAll.
package docstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kittclouds/kittpages/internal/store"
	"github.com/kittclouds/kittpages/pkg/history"
	"github.com/kittclouds/kittpages/pkg/linkpreview"
	"github.com/kittclouds/kittpages/pkg/templates"
)

// ErrNotFound is returned by operations that must report an unknown id.
var ErrNotFound = errors.New("docstore: document not found")

// SyncError describes a backend write that failed after the local change
// was applied.
type SyncError struct {
	Op  string
	ID  string
	Err error
}

func (e SyncError) Error() string {
	return "sync " + e.Op + " " + e.ID + ": " + e.Err.Error()
}

func (e SyncError) Unwrap() error { return e.Err }

// Previewer fetches link metadata; *linkpreview.Fetcher implements it.
type Previewer interface {
	Fetch(ctx context.Context, key, rawURL string) (linkpreview.Preview, error)
}

// state is an immutable snapshot of the tree. Mutators clone it, replace the
// documents they touch and swap the pointer, so history entries can share
// unchanged documents.
type state struct {
	docs  map[string]*Document
	roots []string
}

func emptyState() *state {
	return &state{docs: make(map[string]*Document)}
}

func (st *state) clone() *state {
	docs := make(map[string]*Document, len(st.docs))
	for id, d := range st.docs {
		docs[id] = d
	}
	return &state{docs: docs, roots: st.roots}
}

// edit replaces the document with a private copy that may be modified.
func (st *state) edit(id string) *Document {
	d, ok := st.docs[id]
	if !ok {
		return nil
	}
	c := *d
	st.docs[id] = &c
	return &c
}

// siblings returns the ordered list holding children of parentID.
func (st *state) siblings(parentID string) []string {
	if parentID == "" {
		return st.roots
	}
	if p, ok := st.docs[parentID]; ok {
		return p.Children
	}
	return nil
}

func (st *state) setSiblings(parentID string, ids []string) {
	if parentID == "" {
		st.roots = ids
		return
	}
	if p := st.edit(parentID); p != nil {
		p.Children = ids
	}
}

func (st *state) position(id string) int {
	d, ok := st.docs[id]
	if !ok {
		return -1
	}
	return indexOf(st.siblings(d.ParentID), id)
}

// isDescendant reports whether id lies in the subtree rooted at ancestor.
func (st *state) isDescendant(id, ancestor string) bool {
	seen := make(map[string]bool)
	for cur := id; cur != ""; {
		if cur == ancestor {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		d, ok := st.docs[cur]
		if !ok {
			return false
		}
		cur = d.ParentID
	}
	return false
}

// subtree returns id and all its descendants in pre-order.
func (st *state) subtree(id string) []string {
	var out []string
	var walk func(string)
	walk = func(cur string) {
		d, ok := st.docs[cur]
		if !ok {
			return
		}
		out = append(out, cur)
		for _, c := range d.Children {
			walk(c)
		}
	}
	walk(id)
	return out
}

// Store owns the page tree.
type Store struct {
	mu      sync.RWMutex
	cur     *state
	err     error
	history *history.History[*state]

	backend   store.Backend
	log       zerolog.Logger
	ownerID   string
	templates *templates.Catalog
	newID     func() string
	now       func() time.Time
	previewer Previewer
	onSyncErr func(SyncError)

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int

	tailMu sync.Mutex
	tails  map[string]chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for sync failures and fetch warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l.With().Str("component", "docstore").Logger() }
}

// WithOwner sets the owner id written on created documents.
func WithOwner(id string) Option {
	return func(s *Store) { s.ownerID = id }
}

// WithHistoryLimit sets how many undo steps are kept.
func WithHistoryLimit(n int) Option {
	return func(s *Store) { s.history = history.New[*state](n) }
}

// WithTemplates sets the catalog used by CreateFromTemplate.
func WithTemplates(c *templates.Catalog) Option {
	return func(s *Store) { s.templates = c }
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// WithPreviewer enables FetchBookmarkPreview.
func WithPreviewer(p Previewer) Option {
	return func(s *Store) { s.previewer = p }
}

// WithSyncErrorHandler registers a callback for failed backend writes. It
// runs on the sync goroutine.
func WithSyncErrorHandler(fn func(SyncError)) Option {
	return func(s *Store) { s.onSyncErr = fn }
}

// New creates an empty store syncing to backend. Call FetchAll to load the
// backend's documents.
func New(backend store.Backend, opts ...Option) *Store {
	s := &Store{
		cur:       emptyState(),
		history:   history.New[*state](history.DefaultLimit),
		backend:   backend,
		log:       zerolog.Nop(),
		templates: templates.Default(),
		newID:     uuid.NewString,
		now:       time.Now,
		subs:      make(map[int]func()),
		tails:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

// =============================================================================
// Mutation plumbing
// =============================================================================

// mutate runs fn on a private copy of the current state. When fn reports a
// change, the copy becomes current and the previous state is recorded.
func (s *Store) mutate(fn func(next *state) bool) bool {
	s.mu.Lock()
	prev := s.cur
	next := prev.clone()
	if !fn(next) {
		s.mu.Unlock()
		return false
	}
	s.history.Record(prev)
	s.cur = next
	s.mu.Unlock()

	s.notify()
	return true
}

// sync runs a backend write for document id in the background.
func (s *Store) sync(op, id string, fn func(ctx context.Context) error) {
	s.syncFor(id, op, id, fn)
}

// syncFor runs fn after every earlier write queued for docID has finished,
// so writes for one document reach the backend in mutation order. Writes
// for different documents run concurrently.
func (s *Store) syncFor(docID, op, id string, fn func(ctx context.Context) error) {
	done := make(chan struct{})
	s.tailMu.Lock()
	prev := s.tails[docID]
	s.tails[docID] = done
	s.tailMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			close(done)
			s.tailMu.Lock()
			if s.tails[docID] == done {
				delete(s.tails, docID)
			}
			s.tailMu.Unlock()
		}()
		if prev != nil {
			<-prev
		}
		if err := fn(context.Background()); err != nil {
			s.syncFailed(op, id, err)
		}
	}()
}

func (s *Store) syncFailed(op, id string, err error) {
	s.log.Error().Err(err).Str("op", op).Str("id", id).Msg("backend sync failed")
	if s.onSyncErr != nil {
		s.onSyncErr(SyncError{Op: op, ID: id, Err: err})
	}
}

// drain blocks until every write queued so far has reached the backend.
// Later writes are not waited for.
func (s *Store) drain() {
	s.tailMu.Lock()
	pending := make([]chan struct{}, 0, len(s.tails))
	for _, ch := range s.tails {
		pending = append(pending, ch)
	}
	s.tailMu.Unlock()
	for _, ch := range pending {
		<-ch
	}
}

// Wait blocks until every background sync started so far has finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// =============================================================================
// Subscriptions
// =============================================================================

// Subscribe registers fn to run after every state change. fn runs outside
// the store lock and may read from the store. The returned func removes it.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// =============================================================================
// Reads
// =============================================================================

// Document returns a copy of the document.
func (s *Store) Document(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.cur.docs[id]
	if !ok {
		return Document{}, false
	}
	return copyDocument(d), true
}

// RootIDs returns the ordered root document ids.
func (s *Store) RootIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cur.roots...)
}

// Children returns the ordered child ids of a document.
func (s *Store) Children(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.cur.docs[id]; ok {
		return append([]string(nil), d.Children...)
	}
	return nil
}

// Len returns the number of documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cur.docs)
}

// Err returns the error of the last failed FetchAll, or nil.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Snapshot is a deep copy of the whole tree.
type Snapshot struct {
	Documents map[string]Document `json:"documents"`
	RootIDs   []string            `json:"rootIds"`
}

// Snapshot returns a copy of every document and the root list.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{
		Documents: make(map[string]Document, len(s.cur.docs)),
		RootIDs:   append([]string(nil), s.cur.roots...),
	}
	for id, d := range s.cur.docs {
		out.Documents[id] = copyDocument(d)
	}
	return out
}

// Walk visits documents in tree order. Archived documents and their
// subtrees are skipped unless includeArchived is set.
func (s *Store) Walk(includeArchived bool, fn func(d Document, depth int)) {
	s.mu.RLock()
	st := s.cur
	s.mu.RUnlock()

	var visit func(ids []string, depth int)
	visit = func(ids []string, depth int) {
		for _, id := range ids {
			d, ok := st.docs[id]
			if !ok || (d.IsArchived && !includeArchived) {
				continue
			}
			fn(copyDocument(d), depth)
			visit(d.Children, depth+1)
		}
	}
	visit(st.roots, 0)
}

// Favorites returns favorite, non-archived documents in tree order.
func (s *Store) Favorites() []Document {
	var out []Document
	s.Walk(false, func(d Document, _ int) {
		if d.IsFavorite {
			out = append(out, d)
		}
	})
	return out
}

// Archived returns archived documents in tree order.
func (s *Store) Archived() []Document {
	var out []Document
	s.Walk(true, func(d Document, _ int) {
		if d.IsArchived {
			out = append(out, d)
		}
	})
	return out
}

// Path returns the ancestors of id from the root down, ending with id.
func (s *Store) Path(id string) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	seen := make(map[string]bool)
	for cur := id; cur != "" && !seen[cur]; {
		seen[cur] = true
		d, ok := s.cur.docs[cur]
		if !ok {
			break
		}
		out = append(out, copyDocument(d))
		cur = d.ParentID
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// =============================================================================
// Undo / Redo
// =============================================================================

// Undo restores the state before the last recorded mutation. It changes
// local state only; the backend keeps the undone writes.
func (s *Store) Undo() bool {
	s.mu.Lock()
	prev, ok := s.history.Undo(s.cur)
	if ok {
		s.cur = prev
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// Redo reapplies the last undone state locally.
func (s *Store) Redo() bool {
	s.mu.Lock()
	next, ok := s.history.Redo(s.cur)
	if ok {
		s.cur = next
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// CanUndo reports whether Undo has a state to restore.
func (s *Store) CanUndo() bool { return s.history.CanUndo() }

// CanRedo reports whether Redo has a state to reapply.
func (s *Store) CanRedo() bool { return s.history.CanRedo() }

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func insertAt(ids []string, id string, index int) []string {
	if index < 0 {
		index = 0
	}
	if index > len(ids) {
		index = len(ids)
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:index]...)
	out = append(out, id)
	return append(out, ids[index:]...)
}
