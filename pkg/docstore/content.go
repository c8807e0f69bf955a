package docstore

import (
	"context"
	"errors"

	"github.com/kittclouds/kittpages/internal/store"
	"github.com/kittclouds/kittpages/pkg/blocks"
)

// editContent runs fn on the content of docID inside a mutation. fn returns
// the new list and whether anything changed.
func (s *Store) editContent(docID string, fn func(list []blocks.Block) ([]blocks.Block, bool)) ([]blocks.Block, bool) {
	var out []blocks.Block
	ok := s.mutate(func(next *state) bool {
		d, exists := next.docs[docID]
		if !exists {
			return false
		}
		list, changed := fn(d.Content)
		if !changed {
			return false
		}
		e := next.edit(docID)
		e.Content = list
		e.UpdatedAt = s.nowMillis()
		out = list
		return true
	})
	return out, ok
}

// syncPositions upserts every block of list except skipID so stored
// positions match list indexes. Stored positions may disagree with local
// order after a failed sync, so the whole list is rewritten.
func (s *Store) syncPositions(ctx context.Context, docID string, list []blocks.Block, skipID string) error {
	recs := make([]*store.BlockRecord, 0, len(list))
	for i, b := range list {
		if b.ID == skipID {
			continue
		}
		rec, err := blockRecord(docID, b, i)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil
	}
	_, err := s.backend.UpsertBlocks(ctx, recs)
	return err
}

// InsertBlock inserts b into the document's content at index, clamped to the
// list bounds. An empty id is replaced with a fresh one and an empty type
// becomes text. It returns the block id, or "", false for an unknown
// document.
func (s *Store) InsertBlock(docID string, b blocks.Block, index int) (string, bool) {
	if b.ID == "" {
		b.ID = s.newID()
	}
	if b.Type == "" {
		b.Type = blocks.TypeText
	}
	b = blocks.Clone(b)

	var at int
	list, ok := s.editContent(docID, func(list []blocks.Block) ([]blocks.Block, bool) {
		at = index
		if at < 0 {
			at = 0
		}
		if at > len(list) {
			at = len(list)
		}
		return blocks.Insert(list, b, at), true
	})
	if !ok {
		return "", false
	}

	rec, err := blockRecord(docID, b, at)
	if err != nil {
		s.syncFailed("insert_block", b.ID, err)
		return b.ID, true
	}
	s.syncFor(docID, "insert_block", b.ID, func(ctx context.Context) error {
		if _, err := s.backend.CreateBlock(ctx, rec); err != nil {
			return err
		}
		if at == len(list)-1 {
			return nil
		}
		return s.syncPositions(ctx, docID, list, b.ID)
	})
	return b.ID, true
}

// UpdateBlock merges p into a block. Unknown documents or blocks and empty
// patches are no-ops.
func (s *Store) UpdateBlock(docID, blockID string, p blocks.Patch) bool {
	if p.Empty() {
		return false
	}
	var updated blocks.Block
	_, ok := s.editContent(docID, func(list []blocks.Block) ([]blocks.Block, bool) {
		out, changed := blocks.Update(list, blockID, p)
		if changed {
			updated, _ = blocks.Find(out, blockID)
		}
		return out, changed
	})
	if !ok {
		return false
	}

	var fields store.BlockFields
	if p.Type != nil {
		t := string(*p.Type)
		fields.Type = &t
	}
	if p.Content != nil {
		c := *p.Content
		fields.Content = &c
	}
	if p.Props != nil {
		props, err := encodeProps(updated.Props)
		if err != nil {
			s.syncFailed("update_block", blockID, err)
			return true
		}
		fields.Props = props
	}
	s.syncFor(docID, "update_block", blockID, func(ctx context.Context) error {
		_, err := s.backend.UpdateBlock(ctx, blockID, fields)
		return err
	})
	return true
}

// DeleteBlock removes a block from the document's content. Blocks after it
// are renumbered so stored positions stay dense.
func (s *Store) DeleteBlock(docID, blockID string) bool {
	var at int
	list, ok := s.editContent(docID, func(list []blocks.Block) ([]blocks.Block, bool) {
		at = blocks.IndexOf(list, blockID)
		return blocks.Delete(list, blockID)
	})
	if !ok {
		return false
	}
	s.syncFor(docID, "delete_block", blockID, func(ctx context.Context) error {
		err := s.backend.DeleteBlock(ctx, blockID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if at >= len(list) {
			return nil
		}
		recs, err := BlockRecords(docID, list, at)
		if err != nil {
			return err
		}
		_, err = s.backend.UpsertBlocks(ctx, recs)
		return err
	})
	return true
}

// DuplicateBlock inserts a copy of a block right after it and returns the
// copy's id. Blocks nested in columns get fresh ids too.
func (s *Store) DuplicateBlock(docID, blockID string) (string, bool) {
	var at int
	list, ok := s.editContent(docID, func(list []blocks.Block) ([]blocks.Block, bool) {
		out, i, changed := blocks.Duplicate(list, blockID, s.newID)
		at = i
		return out, changed
	})
	if !ok {
		return "", false
	}

	copied := list[at]
	rec, err := blockRecord(docID, copied, at)
	if err != nil {
		s.syncFailed("duplicate_block", copied.ID, err)
		return copied.ID, true
	}
	s.syncFor(docID, "duplicate_block", copied.ID, func(ctx context.Context) error {
		if _, err := s.backend.CreateBlock(ctx, rec); err != nil {
			return err
		}
		if at == len(list)-1 {
			return nil
		}
		return s.syncPositions(ctx, docID, list, copied.ID)
	})
	return copied.ID, true
}

// MoveBlock moves the block at from to index to. Out of range from indexes
// are no-ops; to is clamped. The stored position of every block in the
// document is rewritten.
func (s *Store) MoveBlock(docID string, from, to int) bool {
	list, ok := s.editContent(docID, func(list []blocks.Block) ([]blocks.Block, bool) {
		return blocks.Move(list, from, to)
	})
	if !ok {
		return false
	}
	s.sync("move_block", docID, func(ctx context.Context) error {
		return s.syncPositions(ctx, docID, list, "")
	})
	return true
}
