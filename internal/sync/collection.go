package sync

import (
	"slices"
	gosync "sync"
)

// Collection is the set of accounts, ordered by id.
type Collection struct {
	mu       gosync.RWMutex
	accounts map[int]*Account
	ids      []int
	lastID   int
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{accounts: make(map[int]*Account)}
}

// nextID reserves the id for an account configured without one.
func (c *Collection) nextID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastID++
	return c.lastID
}

// add inserts a. It reports false if the id is taken.
func (c *Collection) add(a *Account) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.accounts[a.id]; ok {
		return false
	}
	c.accounts[a.id] = a
	i, _ := slices.BinarySearch(c.ids, a.id)
	c.ids = slices.Insert(c.ids, i, a.id)
	c.lastID = max(c.lastID, a.id)
	return true
}

func (c *Collection) remove(id int) (*Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.accounts[id]
	if !ok {
		return nil, false
	}
	delete(c.accounts, id)
	if i, found := slices.BinarySearch(c.ids, id); found {
		c.ids = slices.Delete(c.ids, i, i+1)
	}
	return a, true
}

// Len returns the number of accounts.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// Get returns the account with the given id.
func (c *Collection) Get(id int) (*Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.accounts[id]
	return a, ok
}

// All returns the accounts in id order.
func (c *Collection) All() []*Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Account, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.accounts[id])
	}
	return out
}

// First returns the account with the lowest id.
func (c *Collection) First() (*Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.ids) == 0 {
		return nil, false
	}
	return c.accounts[c.ids[0]], true
}

// Last returns the account with the highest id.
func (c *Collection) Last() (*Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.ids) == 0 {
		return nil, false
	}
	return c.accounts[c.ids[len(c.ids)-1]], true
}

// Next returns the account following id. id need not be present.
func (c *Collection) Next(id int) (*Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, found := slices.BinarySearch(c.ids, id)
	if found {
		i++
	}
	if i >= len(c.ids) {
		return nil, false
	}
	return c.accounts[c.ids[i]], true
}

// Previous returns the account preceding id. id need not be present.
func (c *Collection) Previous(id int) (*Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, _ := slices.BinarySearch(c.ids, id)
	if i == 0 {
		return nil, false
	}
	return c.accounts[c.ids[i-1]], true
}
