package history

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-notifier/internal/keys"
	"github.com/nhle/mail-notifier/internal/store"
)

func TestOpenListsEntries(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 120, 20)
	m.Open("alice", nil)
	assert.Contains(t, m.View(), "No mail recorded yet.")

	m.Open("alice", []store.MailEntry{
		{Sequence: 2, Sender: "Bob", Subject: "Lunch?", CreatedAt: time.Now()},
		{Sequence: 1, Sender: "Carol", Subject: "Invoice", CreatedAt: time.Now().Add(-2 * time.Hour)},
	})
	assert.Equal(t, 2, m.Len())

	view := m.View()
	assert.Contains(t, view, "Recent mail · alice")
	assert.Contains(t, view, "Lunch?")
	assert.Contains(t, view, "Invoice")
	assert.Contains(t, view, "2 hours ago")
}

func TestEscGoesBack(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, BackMsg{}, cmd())
}
