package mailcache

import (
	"fmt"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-notifier/internal/model"
)

func mail(seq int64, uid uint32) model.MailSummary {
	return model.MailSummary{
		AccountID: 1,
		ID:        model.MailIdentity{Folder: "F", UID: uid},
		Sequence:  seq,
		Subject:   fmt.Sprintf("m%d", uid),
	}
}

func TestEmptyCache(t *testing.T) {
	c := New()
	assert.Zero(t, c.Count())
	_, ok := c.First()
	assert.False(t, ok)
	_, ok = c.Last()
	assert.False(t, ok)
	_, ok = c.Next(mail(1, 1))
	assert.False(t, ok)
	_, ok = c.Previous(mail(1, 1))
	assert.False(t, ok)
	assert.Empty(t, c.Snapshot())
}

func TestReplaceAllOrdersBySequence(t *testing.T) {
	c := New()
	c.ReplaceAll([]model.MailSummary{mail(3, 30), mail(1, 10), mail(2, 20)})

	require.Equal(t, 3, c.Count())
	first, ok := c.First()
	require.True(t, ok)
	assert.Equal(t, uint32(10), first.ID.UID)
	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, uint32(30), last.ID.UID)

	next, ok := c.Next(first)
	require.True(t, ok)
	assert.Equal(t, int64(2), next.Sequence)
	prev, ok := c.Previous(next)
	require.True(t, ok)
	assert.Equal(t, int64(1), prev.Sequence)

	_, ok = c.Next(last)
	assert.False(t, ok)
	_, ok = c.Previous(first)
	assert.False(t, ok)
}

func TestNavigationFromRemovedMessage(t *testing.T) {
	c := New()
	c.ReplaceAll([]model.MailSummary{mail(1, 1), mail(3, 3)})

	gone := mail(2, 2)
	next, ok := c.Next(gone)
	require.True(t, ok)
	assert.Equal(t, int64(3), next.Sequence)
	prev, ok := c.Previous(gone)
	require.True(t, ok)
	assert.Equal(t, int64(1), prev.Sequence)
}

func TestReplacePrunesAndAdds(t *testing.T) {
	c := New()
	c.ReplaceAll([]model.MailSummary{mail(1, 1), mail(2, 2), mail(3, 3)})

	present := map[model.MailIdentity]struct{}{
		{Folder: "F", UID: 1}: {},
		{Folder: "F", UID: 3}: {},
		{Folder: "F", UID: 4}: {},
	}
	c.Replace(present, []model.MailSummary{mail(4, 4)})

	assert.Equal(t, 3, c.Count())
	assert.False(t, c.Contains(model.MailIdentity{Folder: "F", UID: 2}))
	assert.True(t, c.Contains(model.MailIdentity{Folder: "F", UID: 4}))

	var seqs []int64
	for _, m := range c.Snapshot() {
		seqs = append(seqs, m.Sequence)
	}
	assert.Equal(t, []int64{1, 3, 4}, seqs)

	got, ok := c.Get(model.MailIdentity{Folder: "F", UID: 3})
	require.True(t, ok)
	assert.Equal(t, "m3", got.Subject)

	assert.Len(t, c.Keys(), 3)
	assert.Equal(t, []model.MailSummary{mail(4, 4)}, c.Since(3))
}

func TestSnapshotIsACopy(t *testing.T) {
	c := New()
	c.ReplaceAll([]model.MailSummary{mail(1, 1)})
	snap := c.Snapshot()
	snap[0].Subject = "changed"

	got, _ := c.First()
	assert.Equal(t, "m1", got.Subject)
}

func TestReplaceIsAtomicForReaders(t *testing.T) {
	c := New()
	setA := []model.MailSummary{mail(1, 1), mail(2, 2), mail(3, 3)}
	setB := []model.MailSummary{mail(4, 4), mail(5, 5)}
	c.ReplaceAll(setA)

	isA := func(s []model.MailSummary) bool { return assert.ObjectsAreEqual(setA, s) }
	isB := func(s []model.MailSummary) bool { return assert.ObjectsAreEqual(setB, s) }

	var wg gosync.WaitGroup
	stop := make(chan struct{})
	bad := make(chan []model.MailSummary, 1)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := c.Snapshot()
				if !isA(s) && !isB(s) {
					select {
					case bad <- s:
					default:
					}
					return
				}
			}
		}()
	}

	for i := range 500 {
		if i%2 == 0 {
			c.ReplaceAll(setB)
		} else {
			c.ReplaceAll(setA)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case s := <-bad:
		t.Fatalf("reader observed a partial set: %v", s)
	default:
	}
}
