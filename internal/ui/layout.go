// Package ui holds layout helpers shared by the terminal views.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-notifier/internal/theme"
)

// Layout manages the terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentHeight returns the height available between the header and the
// status bar.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.StatusBarHeight, 0)
}

// RenderHeader renders a full-width bar with title on the left and summary
// on the right.
func (l Layout) RenderHeader(style lipgloss.Style, title, summary string) string {
	left := style.Render(title)
	right := style.Render(summary)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, l.fill(style, left, right), right)
}

// RenderStatusBar renders the bottom status bar.
func (l Layout) RenderStatusBar(text string) string {
	rendered := theme.StatusBarStyle.Render(text)
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, l.fill(theme.StatusBarStyle, rendered))
}

// fill pads the remainder of the line with style's background.
func (l Layout) fill(style lipgloss.Style, parts ...string) string {
	gap := l.Width
	for _, p := range parts {
		gap -= lipgloss.Width(p)
	}
	return lipgloss.NewStyle().
		Width(max(gap, 0)).
		Background(style.GetBackground()).
		Render("")
}

// Frame stacks the header, content and status bar.
func (l Layout) Frame(header, content, statusBar string) string {
	content = lipgloss.NewStyle().Height(l.ContentHeight()).Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
