package mail

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-notifier/internal/keys"
	"github.com/nhle/mail-notifier/internal/mailcache"
	"github.com/nhle/mail-notifier/internal/model"
)

func summary(seq int64, subject string) model.MailSummary {
	return model.MailSummary{
		AccountID: 1,
		ID:        model.MailIdentity{Folder: "INBOX", UID: uint32(seq)},
		Sequence:  seq,
		From:      "Sender",
		Subject:   subject,
		Date:      time.Now().Add(-time.Hour),
		Snippet:   "snippet of " + subject,
	}
}

func press(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestReaderNavigation(t *testing.T) {
	cache := mailcache.New()
	cache.ReplaceAll([]model.MailSummary{summary(1, "one"), summary(2, "two"), summary(3, "three")})

	m := New(keys.DefaultKeyMap(), 100, 30)
	m.Open("alice", cache)

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "three", cur.Subject)
	assert.Contains(t, m.View(), "message 3 of 3")

	m, _ = m.Update(press("p"))
	m, _ = m.Update(press("p"))
	cur, _ = m.Current()
	assert.Equal(t, "one", cur.Subject)

	m, _ = m.Update(press("p"))
	cur, _ = m.Current()
	assert.Equal(t, "one", cur.Subject, "stays on the oldest message")

	m, _ = m.Update(press("n"))
	cur, _ = m.Current()
	assert.Equal(t, "two", cur.Subject)
	assert.Contains(t, m.View(), "snippet of two")
}

func TestReaderRefreshAfterRead(t *testing.T) {
	cache := mailcache.New()
	cache.ReplaceAll([]model.MailSummary{summary(1, "one"), summary(2, "two"), summary(3, "three")})

	m := New(keys.DefaultKeyMap(), 100, 30)
	m.Open("alice", cache)
	m, _ = m.Update(press("p"))

	cache.ReplaceAll([]model.MailSummary{summary(1, "one"), summary(3, "three")})
	m.Refresh()
	cur, _ := m.Current()
	assert.Equal(t, "three", cur.Subject)

	cache.ReplaceAll(nil)
	m.Refresh()
	_, ok := m.Current()
	assert.False(t, ok)
	assert.Contains(t, m.View(), "No unread mail.")
}

func TestReaderBack(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 30)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, BackMsg{}, cmd())
}
