// Package mailcache holds the unread mail currently known for one account.
package mailcache

import (
	"slices"
	gosync "sync"

	"github.com/nhle/mail-notifier/internal/model"
)

// Cache is an ordered, concurrency-safe set of mail summaries. Entries are
// indexed both by identity and by (account, sequence) order; both indexes
// are swapped together so readers never see a partial update.
type Cache struct {
	mu     gosync.RWMutex
	byID   map[model.MailIdentity]model.MailSummary
	sorted []model.MailSummary
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{byID: make(map[model.MailIdentity]model.MailSummary)}
}

// Count returns the number of cached messages.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sorted)
}

// Contains reports whether the identity is cached.
func (c *Cache) Contains(id model.MailIdentity) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byID[id]
	return ok
}

// Get returns the summary for the identity.
func (c *Cache) Get(id model.MailIdentity) (model.MailSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byID[id]
	return m, ok
}

// First returns the oldest message.
func (c *Cache) First() (model.MailSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.sorted) == 0 {
		return model.MailSummary{}, false
	}
	return c.sorted[0], true
}

// Last returns the newest message.
func (c *Cache) Last() (model.MailSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.sorted) == 0 {
		return model.MailSummary{}, false
	}
	return c.sorted[len(c.sorted)-1], true
}

// Next returns the message ordered directly after m. m need not be cached.
func (c *Cache) Next(m model.MailSummary) (model.MailSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, found := slices.BinarySearchFunc(c.sorted, m, model.CompareMail)
	if found {
		i++
	}
	if i >= len(c.sorted) {
		return model.MailSummary{}, false
	}
	return c.sorted[i], true
}

// Previous returns the message ordered directly before m. m need not be
// cached.
func (c *Cache) Previous(m model.MailSummary) (model.MailSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, _ := slices.BinarySearchFunc(c.sorted, m, model.CompareMail)
	if i == 0 {
		return model.MailSummary{}, false
	}
	return c.sorted[i-1], true
}

// Snapshot returns a copy of all messages in order.
func (c *Cache) Snapshot() []model.MailSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.sorted)
}

// Keys returns the identities of all cached messages.
func (c *Cache) Keys() map[model.MailIdentity]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make(map[model.MailIdentity]struct{}, len(c.byID))
	for id := range c.byID {
		keys[id] = struct{}{}
	}
	return keys
}

// Since returns, in order, the messages with a sequence number above seq.
func (c *Cache) Since(seq int64) []model.MailSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.MailSummary
	for _, m := range c.sorted {
		if m.Sequence > seq {
			out = append(out, m)
		}
	}
	return out
}

// Replace keeps only the cached messages whose identity is in present and
// then adds the given messages, all in one step.
func (c *Cache) Replace(present map[model.MailIdentity]struct{}, added []model.MailSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]model.MailSummary, 0, len(present)+len(added))
	for _, m := range c.sorted {
		if _, ok := present[m.ID]; ok {
			next = append(next, m)
		}
	}
	c.byID, c.sorted = index(append(next, added...))
}

// ReplaceAll swaps the cache contents for set. If set holds two summaries
// with the same identity, the later one wins.
func (c *Cache) ReplaceAll(set []model.MailSummary) {
	byID, sorted := index(set)

	c.mu.Lock()
	c.byID, c.sorted = byID, sorted
	c.mu.Unlock()
}

func index(set []model.MailSummary) (map[model.MailIdentity]model.MailSummary, []model.MailSummary) {
	byID := make(map[model.MailIdentity]model.MailSummary, len(set))
	for _, m := range set {
		byID[m.ID] = m
	}
	sorted := make([]model.MailSummary, 0, len(byID))
	for _, m := range byID {
		sorted = append(sorted, m)
	}
	slices.SortFunc(sorted, model.CompareMail)
	return byID, sorted
}
