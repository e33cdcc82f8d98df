package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-notifier/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the application title bar.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// HotHeaderStyle replaces HeaderStyle while there is new mail.
var HotHeaderStyle = HeaderStyle.
	Background(ColorOrange)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// PanelStyle wraps the mail reader and tooltip panels.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// TitleStyle heads a panel.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	MarginBottom(1)

// LabelStyle is used for field names such as "From:".
var LabelStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorGray)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// ErrorStyle is used for error messages in the status bar.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed).
	Bold(true)

// StatusStyle returns a color-coded style for an account status.
func StatusStyle(s model.Status) lipgloss.Style {
	base := lipgloss.NewStyle()

	switch s {
	case model.StatusLoggingIn, model.StatusChecking:
		return base.Foreground(ColorYellow)
	case model.StatusWaiting:
		return base.Foreground(ColorGreen)
	case model.StatusError:
		return base.Foreground(ColorRed).Bold(true)
	default:
		return base.Foreground(ColorGray)
	}
}

// UnreadStyle highlights unread counts that include new mail.
func UnreadStyle(newUnread bool) lipgloss.Style {
	if newUnread {
		return lipgloss.NewStyle().Bold(true).Foreground(ColorOrange)
	}
	return lipgloss.NewStyle()
}
