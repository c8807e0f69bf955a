package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/kittclouds/kittpages/internal/store"
	"github.com/kittclouds/kittpages/pkg/blocks"
)

// =============================================================================
// Fetch
// =============================================================================

// FetchAll replaces local state with the backend's documents and blocks.
// On failure the error is kept in Err and local state is left as it was.
// FetchAll is not recorded in history.
func (s *Store) FetchAll(ctx context.Context) error {
	docRecords, err := s.backend.ListDocuments(ctx)
	if err != nil {
		return s.fetchFailed(fmt.Errorf("fetch documents: %w", err))
	}
	blockRecords, err := s.backend.ListBlocks(ctx)
	if err != nil {
		return s.fetchFailed(fmt.Errorf("fetch blocks: %w", err))
	}

	next := s.buildState(docRecords, blockRecords)

	s.mu.Lock()
	s.cur = next
	s.err = nil
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) fetchFailed(err error) error {
	s.log.Error().Err(err).Msg("fetch failed")
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.notify()
	return err
}

// buildState derives children and root lists from parent ids. Documents
// whose parent is unknown, or that are unreachable from a root because of a
// parent cycle, are promoted to roots.
func (s *Store) buildState(docRecords []*store.DocumentRecord, blockRecords []*store.BlockRecord) *state {
	sorted := append([]*store.DocumentRecord(nil), docRecords...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})

	st := emptyState()
	for _, r := range sorted {
		if r == nil || r.ID == "" {
			continue
		}
		st.docs[r.ID] = documentFromRecord(r)
	}

	placed := make(map[string]bool, len(st.docs))
	for _, r := range sorted {
		d, ok := st.docs[r.ID]
		if !ok || placed[d.ID] {
			continue
		}
		placed[d.ID] = true
		if d.ParentID == "" {
			st.roots = append(st.roots, d.ID)
			continue
		}
		parent, ok := st.docs[d.ParentID]
		if !ok || d.ParentID == d.ID {
			s.log.Warn().Str("id", d.ID).Str("parent", d.ParentID).Msg("orphaned document promoted to root")
			d.ParentID = ""
			st.roots = append(st.roots, d.ID)
			continue
		}
		parent.Children = append(parent.Children, d.ID)
	}

	reached := make(map[string]bool, len(st.docs))
	var mark func(id string)
	mark = func(id string) {
		if reached[id] {
			return
		}
		reached[id] = true
		for _, c := range st.docs[id].Children {
			mark(c)
		}
	}
	for _, id := range st.roots {
		mark(id)
	}
	for _, r := range sorted {
		d, ok := st.docs[r.ID]
		if !ok || reached[d.ID] {
			continue
		}
		s.log.Warn().Str("id", d.ID).Str("parent", d.ParentID).Msg("document in parent cycle promoted to root")
		if p, ok := st.docs[d.ParentID]; ok {
			p.Children = without(p.Children, d.ID)
		}
		d.ParentID = ""
		st.roots = append(st.roots, d.ID)
		mark(d.ID)
	}

	content, errs := GroupBlocks(blockRecords)
	for _, err := range errs {
		s.log.Warn().Err(err).Msg("block props dropped")
	}
	for docID, list := range content {
		d, ok := st.docs[docID]
		if !ok {
			s.log.Warn().Str("document", docID).Int("blocks", len(list)).Msg("blocks for unknown document ignored")
			continue
		}
		d.Content = list
	}
	return st
}

// =============================================================================
// Create
// =============================================================================

// Create adds an empty page under parentID ("" for a root page) and returns
// its id. The page starts with one empty text block and the parent is
// expanded. An unknown parent returns "", false and changes nothing.
func (s *Store) Create(parentID string) (string, bool) {
	content := []blocks.Block{blocks.New(s.newID(), blocks.TypeText, "")}
	return s.create(parentID, "", "", content)
}

// CreateFromTemplate is Create seeded with a template's title, icon and
// blocks. An unknown template returns "", false.
func (s *Store) CreateFromTemplate(templateID, parentID string) (string, bool) {
	tpl, ok := s.templates.Get(templateID)
	if !ok {
		return "", false
	}
	content := tpl.Blocks(s.newID)
	if len(content) == 0 {
		content = []blocks.Block{blocks.New(s.newID(), blocks.TypeText, "")}
	}
	return s.create(parentID, tpl.Title, tpl.Icon, content)
}

// CreatePage is Create with a given title and blocks, as produced by an
// import. Blocks without an id get a fresh one; an empty list gets one
// empty text block.
func (s *Store) CreatePage(parentID, title string, content []blocks.Block) (string, bool) {
	content = blocks.CloneList(content)
	for i := range content {
		if content[i].ID == "" {
			content[i].ID = s.newID()
		}
		if !content[i].Type.Valid() {
			content[i].Type = blocks.TypeText
		}
	}
	if len(content) == 0 {
		content = []blocks.Block{blocks.New(s.newID(), blocks.TypeText, "")}
	}
	return s.create(parentID, title, "", content)
}

func (s *Store) create(parentID, title, icon string, content []blocks.Block) (string, bool) {
	id := s.newID()
	now := s.nowMillis()
	doc := &Document{
		ID:        id,
		Title:     title,
		Icon:      icon,
		Content:   content,
		ParentID:  parentID,
		FontStyle: store.FontDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var (
		position       int
		expandedParent bool
	)
	ok := s.mutate(func(next *state) bool {
		if parentID != "" {
			if _, exists := next.docs[parentID]; !exists {
				return false
			}
		}
		siblings := next.siblings(parentID)
		position = len(siblings)
		next.docs[id] = doc
		next.setSiblings(parentID, insertAt(siblings, id, position))
		if parentID != "" {
			if p := next.edit(parentID); !p.IsExpanded {
				p.IsExpanded = true
				expandedParent = true
			}
		}
		return true
	})
	if !ok {
		return "", false
	}

	docRec := doc.record(position, s.ownerID)
	blockRecs, err := BlockRecords(id, content, 0)
	if err != nil {
		// unencodable content still leaves the page with one block
		s.syncFailed("create", id, err)
		blockRecs = []*store.BlockRecord{{
			ID:         s.newID(),
			DocumentID: id,
			Type:       string(blocks.TypeText),
			Props:      json.RawMessage("{}"),
		}}
	}
	s.sync("create", id, func(ctx context.Context) error {
		if _, err := s.backend.CreateDocument(ctx, docRec); err != nil {
			return err
		}
		switch len(blockRecs) {
		case 0:
		case 1:
			if _, err := s.backend.CreateBlock(ctx, blockRecs[0]); err != nil {
				return err
			}
		default:
			if _, err := s.backend.UpsertBlocks(ctx, blockRecs); err != nil {
				return err
			}
		}
		return nil
	})
	if expandedParent {
		s.sync("expand", parentID, func(ctx context.Context) error {
			_, err := s.backend.UpdateDocument(ctx, parentID, store.DocumentFields{IsExpanded: ptr(true)})
			return err
		})
	}
	return id, true
}

// =============================================================================
// Update
// =============================================================================

// Update merges fields into the document. Unknown ids and empty updates are
// no-ops. Only the fields that were set are sent to the backend; an unknown
// font style is ignored.
func (s *Store) Update(id string, fields Fields) bool {
	if fields.FontStyle != nil && !store.ValidFontStyle(*fields.FontStyle) {
		fields.FontStyle = nil
	}
	if fields.empty() {
		return false
	}

	var payload store.DocumentFields
	ok := s.mutate(func(next *state) bool {
		d := next.edit(id)
		if d == nil {
			return false
		}
		payload = fields.apply(d)
		d.UpdatedAt = s.nowMillis()
		return true
	})
	if !ok {
		return false
	}
	s.sync("update", id, func(ctx context.Context) error {
		_, err := s.backend.UpdateDocument(ctx, id, payload)
		return err
	})
	return true
}

// toggle flips one boolean flag through Update.
func (s *Store) toggle(id string, get func(Document) bool, set func(*Fields, *bool)) bool {
	d, ok := s.Document(id)
	if !ok {
		return false
	}
	var f Fields
	set(&f, ptr(!get(d)))
	return s.Update(id, f)
}

// ToggleExpanded flips whether the page's children are shown in the tree.
func (s *Store) ToggleExpanded(id string) bool {
	return s.toggle(id, func(d Document) bool { return d.IsExpanded }, func(f *Fields, v *bool) { f.IsExpanded = v })
}

// ToggleFavorite flips the favorite flag.
func (s *Store) ToggleFavorite(id string) bool {
	return s.toggle(id, func(d Document) bool { return d.IsFavorite }, func(f *Fields, v *bool) { f.IsFavorite = v })
}

// TogglePublished flips whether the page is served under /preview/.
func (s *Store) TogglePublished(id string) bool {
	return s.toggle(id, func(d Document) bool { return d.IsPublished }, func(f *Fields, v *bool) { f.IsPublished = v })
}

// ToggleFullWidth flips the full-width layout flag.
func (s *Store) ToggleFullWidth(id string) bool {
	return s.toggle(id, func(d Document) bool { return d.IsFullWidth }, func(f *Fields, v *bool) { f.IsFullWidth = v })
}

// ToggleLocked flips the read-only lock.
func (s *Store) ToggleLocked(id string) bool {
	return s.toggle(id, func(d Document) bool { return d.IsLocked }, func(f *Fields, v *bool) { f.IsLocked = v })
}

// SetFontStyle sets "default", "serif" or "mono".
func (s *Store) SetFontStyle(id, style string) bool {
	if !store.ValidFontStyle(style) {
		return false
	}
	return s.Update(id, Fields{FontStyle: &style})
}

// Archive soft-deletes a document: it stays in the tree, is flagged as
// archived and removed from favorites.
func (s *Store) Archive(id string) bool {
	return s.Update(id, Fields{IsArchived: ptr(true), IsFavorite: ptr(false)})
}

// Restore clears the archived flag.
func (s *Store) Restore(id string) bool {
	return s.Update(id, Fields{IsArchived: ptr(false)})
}

// =============================================================================
// Delete
// =============================================================================

// PermanentlyDelete removes a document and all its descendants, detaching it
// from its parent or the root list. The backend deletes run deepest first.
func (s *Store) PermanentlyDelete(id string) bool {
	var removed []string
	ok := s.mutate(func(next *state) bool {
		d, exists := next.docs[id]
		if !exists {
			return false
		}
		removed = next.subtree(id)
		next.setSiblings(d.ParentID, without(next.siblings(d.ParentID), id))
		for _, rid := range removed {
			delete(next.docs, rid)
		}
		return true
	})
	if !ok {
		return false
	}

	s.sync("delete", id, func(ctx context.Context) error {
		var errs []error
		for i := len(removed) - 1; i >= 0; i-- {
			if err := s.backend.DeleteDocument(ctx, removed[i]); err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", removed[i], err))
			}
		}
		return errors.Join(errs...)
	})
	return true
}

// =============================================================================
// Move
// =============================================================================

// Move re-parents a document under newParentID ("" for the root list) at
// newIndex, clamped to the destination bounds. Moving a document into its
// own subtree, or an unknown id, is rejected before any change. Positions of
// the moved document and of every sibling in the destination list are
// synced; when the parent changes, the source list is resynced as well.
func (s *Store) Move(id, newParentID string, newIndex int) bool {
	type positioned struct {
		id       string
		position int
	}
	var (
		oldParentID string
		dest        []positioned
		source      []positioned
	)

	ok := s.mutate(func(next *state) bool {
		d, exists := next.docs[id]
		if !exists {
			return false
		}
		if newParentID != "" {
			if _, exists := next.docs[newParentID]; !exists {
				return false
			}
			if next.isDescendant(newParentID, id) {
				return false
			}
		}
		oldParentID = d.ParentID
		oldIndex := next.position(id)

		srcList := without(next.siblings(oldParentID), id)
		next.setSiblings(oldParentID, srcList)

		destList := next.siblings(newParentID)
		if newIndex < 0 {
			newIndex = 0
		}
		if newIndex > len(destList) {
			newIndex = len(destList)
		}
		if oldParentID == newParentID && oldIndex == newIndex {
			return false
		}
		destList = insertAt(destList, id, newIndex)
		next.setSiblings(newParentID, destList)

		moved := next.edit(id)
		moved.ParentID = newParentID
		moved.UpdatedAt = s.nowMillis()

		for i, sid := range destList {
			dest = append(dest, positioned{sid, i})
		}
		if oldParentID != newParentID {
			for i, sid := range srcList {
				source = append(source, positioned{sid, i})
			}
		}
		return true
	})
	if !ok {
		return false
	}

	s.sync("move", id, func(ctx context.Context) error {
		var errs []error
		for _, p := range dest {
			fields := store.DocumentFields{Position: ptr(p.position)}
			if p.id == id {
				fields.ParentID = ptr(newParentID)
			}
			if _, err := s.backend.UpdateDocument(ctx, p.id, fields); err != nil {
				errs = append(errs, fmt.Errorf("position %s: %w", p.id, err))
			}
		}
		for _, p := range source {
			if _, err := s.backend.UpdateDocument(ctx, p.id, store.DocumentFields{Position: ptr(p.position)}); err != nil {
				errs = append(errs, fmt.Errorf("position %s: %w", p.id, err))
			}
		}
		return errors.Join(errs...)
	})
	return true
}

// =============================================================================
// Duplicate
// =============================================================================

// CopySuffix is appended to the title of a duplicated page.
const CopySuffix = " (Copy)"

// Duplicate deep-copies a document and all its descendants with fresh ids
// for every document and block. The copy is placed after the last sibling of
// the source. Unlike other mutators it waits for every backend write, then
// inserts the copy locally and refetches.
func (s *Store) Duplicate(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	src := s.cur
	s.mu.RUnlock()

	root, ok := src.docs[id]
	if !ok {
		return "", ErrNotFound
	}

	// the source and its parent may still be in flight
	s.drain()

	ids := src.subtree(id)
	newIDs := make(map[string]string, len(ids))
	for _, old := range ids {
		newIDs[old] = s.newID()
	}

	now := s.nowMillis()
	copies := make([]*Document, 0, len(ids))
	positions := make(map[string]int, len(ids))
	for _, old := range ids {
		orig := src.docs[old]
		c := &Document{
			ID:          newIDs[old],
			Title:       orig.Title,
			Icon:        orig.Icon,
			CoverImage:  orig.CoverImage,
			IsExpanded:  orig.IsExpanded,
			IsArchived:  orig.IsArchived,
			IsFullWidth: orig.IsFullWidth,
			IsLocked:    orig.IsLocked,
			FontStyle:   orig.FontStyle,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		for _, b := range orig.Content {
			c.Content = append(c.Content, blocks.CloneWithNewIDs(b, s.newID))
		}
		for i, child := range orig.Children {
			c.Children = append(c.Children, newIDs[child])
			positions[newIDs[child]] = i
		}
		if old == id {
			c.Title = orig.Title + CopySuffix
			c.ParentID = root.ParentID
			positions[c.ID] = len(src.siblings(root.ParentID))
		} else {
			c.ParentID = newIDs[orig.ParentID]
		}
		copies = append(copies, c)
	}

	for _, c := range copies {
		if _, err := s.backend.CreateDocument(ctx, c.record(positions[c.ID], s.ownerID)); err != nil {
			return "", fmt.Errorf("duplicate %s: create %s: %w", id, c.ID, err)
		}
		recs, err := BlockRecords(c.ID, c.Content, 0)
		if err != nil {
			return "", fmt.Errorf("duplicate %s: %w", id, err)
		}
		if len(recs) > 0 {
			if _, err := s.backend.UpsertBlocks(ctx, recs); err != nil {
				return "", fmt.Errorf("duplicate %s: blocks of %s: %w", id, c.ID, err)
			}
		}
	}

	top := copies[0]
	s.mutate(func(next *state) bool {
		for _, c := range copies {
			next.docs[c.ID] = c
		}
		parentID := top.ParentID
		if parentID != "" {
			if _, ok := next.docs[parentID]; !ok {
				parentID = ""
				top.ParentID = ""
			}
		}
		siblings := next.siblings(parentID)
		next.setSiblings(parentID, insertAt(siblings, top.ID, len(siblings)))
		return true
	})

	// writes queued before the copy must land, or the refetch drops
	// pages the caller already sees
	s.drain()
	if err := s.FetchAll(ctx); err != nil {
		s.log.Warn().Err(err).Str("id", top.ID).Msg("refetch after duplicate failed")
	}
	return top.ID, nil
}
