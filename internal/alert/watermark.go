package alert

import gosync "sync"

// Watermarks remembers, per account, the highest mail sequence number the
// popup has already accounted for.
type Watermarks struct {
	mu   gosync.Mutex
	seen map[int]int64
}

// NewWatermarks creates an empty tracker.
func NewWatermarks() *Watermarks {
	return &Watermarks{seen: make(map[int]int64)}
}

// Seen returns the account's watermark, 0 if none.
func (w *Watermarks) Seen(accountID int) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen[accountID]
}

// Advance raises the watermark to seq. Lower values are ignored.
func (w *Watermarks) Advance(accountID int, seq int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq > w.seen[accountID] {
		w.seen[accountID] = seq
	}
}

// Forget drops the account's watermark.
func (w *Watermarks) Forget(accountID int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.seen, accountID)
}
