package app

import (
	"sync"

	"channel_sync_service/internal/channel/domain"
	"channel_sync_service/pkg/orderedmap"
)

// BookmarkStore the acting user's bookmarks, loaded page by page on demand
type BookmarkStore struct {
	mu      sync.RWMutex
	entries *orderedmap.Map[string, domain.AggregateEntry]
	loaded  int
	hasMore bool
}

// NewBookmarkStore create a BookmarkStore
func NewBookmarkStore() *BookmarkStore {
	return &BookmarkStore{
		entries: orderedmap.New[string, domain.AggregateEntry](),
		hasMore: true,
	}
}

// Add bookmark; false when already there
func (b *BookmarkStore) Add(e domain.AggregateEntry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entries.Has(e.MessageID) {
		return false
	}
	b.entries.Set(e.MessageID, e)
	return true
}

// Remove bookmark, returning the removed entry
func (b *BookmarkStore) Remove(messageID string) (domain.AggregateEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries.Get(messageID)
	if !ok {
		return domain.AggregateEntry{}, false
	}
	b.entries.Delete(messageID)
	return e, true
}

// Has message bookmarked
func (b *BookmarkStore) Has(messageID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries.Has(messageID)
}

// MergePage fold a fetched page in; entries already known are refreshed in place
func (b *BookmarkStore) MergePage(offset int, page domain.BookmarkPage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range page.Entries {
		b.entries.Set(e.MessageID, e)
	}
	if end := offset + len(page.Entries); end > b.loaded {
		b.loaded = end
	}
	b.hasMore = page.HasMore
}

// List bookmarks, optionally only archived / unarchived ones
func (b *BookmarkStore) List(archived *bool) []domain.AggregateEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.AggregateEntry, 0, b.entries.Len())
	for _, e := range b.entries.Values() {
		if archived == nil || e.Archived == *archived {
			out = append(out, e)
		}
	}
	return out
}

// Cursor offset of the next page and whether one exists
func (b *BookmarkStore) Cursor() (int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded, b.hasMore
}
