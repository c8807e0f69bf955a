package docstore

import (
	"context"
	"errors"

	"github.com/kittclouds/kittpages/pkg/blocks"
	"github.com/kittclouds/kittpages/pkg/linkpreview"
	"github.com/kittclouds/kittpages/pkg/textindex"
)

// Bookmark props filled in by FetchBookmarkPreview.
const (
	PropBookmarkTitle       = "title"
	PropBookmarkDescription = "description"
	PropBookmarkImage       = "image"
	PropBookmarkSiteName    = "siteName"
)

// Backlinks returns the non-archived documents that link to id through a
// page block or mention its title in their text, in tree order.
func (s *Store) Backlinks(id string) []Document {
	target, ok := s.Document(id)
	if !ok {
		return nil
	}

	idx, err := textindex.NewMentionIndex([]textindex.Titled{{ID: id, Title: target.Title}})
	if err != nil {
		s.log.Warn().Err(err).Str("id", id).Msg("mention index unavailable")
		idx = nil
	}

	var out []Document
	s.Walk(false, func(d Document, _ int) {
		if d.ID == id {
			return
		}
		for _, link := range blocks.Links(d.Content) {
			if link == id {
				out = append(out, d)
				return
			}
		}
		if idx == nil || idx.Len() == 0 {
			return
		}
		if len(idx.Mentioned(blocks.Text(d.Content))) > 0 {
			out = append(out, d)
		}
	})
	return out
}

// FetchBookmarkPreview fetches link metadata for a bookmark block in the
// background and merges it into the block's props through UpdateBlock. A
// newer call for the same block supersedes an older one. It reports false
// when no previewer is configured or the block is not a bookmark with a URL.
func (s *Store) FetchBookmarkPreview(docID, blockID string) bool {
	if s.previewer == nil {
		return false
	}
	d, ok := s.Document(docID)
	if !ok {
		return false
	}
	b, ok := blocks.Find(d.Content, blockID)
	if !ok || b.Type != blocks.TypeBookmark || b.Content == "" {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		p, err := s.previewer.Fetch(context.Background(), blockID, b.Content)
		if errors.Is(err, linkpreview.ErrSuperseded) {
			return
		}
		if err != nil {
			s.log.Warn().Err(err).Str("block", blockID).Str("url", b.Content).Msg("bookmark preview failed")
			return
		}
		s.mergePreview(docID, blockID, b.Content, p)
	}()
	return true
}

// mergePreview writes p into the block's current props. The block is left
// alone if it was removed or its URL changed while the fetch ran.
func (s *Store) mergePreview(docID, blockID, url string, p linkpreview.Preview) {
	d, ok := s.Document(docID)
	if !ok {
		return
	}
	b, ok := blocks.Find(d.Content, blockID)
	if !ok || b.Content != url {
		return
	}
	props := blocks.Props{}
	for k, v := range b.Props {
		props[k] = v
	}
	set := func(key, val string) {
		if val != "" {
			props[key] = val
		}
	}
	set(PropBookmarkTitle, p.Title)
	set(PropBookmarkDescription, p.Description)
	set(PropBookmarkImage, p.Image)
	set(PropBookmarkSiteName, p.SiteName)
	s.UpdateBlock(docID, blockID, blocks.Patch{Props: props})
}
