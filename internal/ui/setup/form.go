// Package setup is the form for adding and editing mail accounts.
package setup

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-notifier/internal/model"
	"github.com/nhle/mail-notifier/internal/theme"
)

// MinCheckInterval is the shortest accepted check interval.
const MinCheckInterval = 10 * time.Second

// SavedMsg is dispatched when the form is submitted. Password is empty when
// an existing account keeps its stored password.
type SavedMsg struct {
	Account  model.AccountConfig
	Password string
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

const (
	alertPopup = "popup"
	alertChime = "chime"
	alertBell  = "bell"
	alertLED   = "led"
)

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	username string
	password string
	mode     model.NotifyMode
	labels   string
	alerts   []string
	interval string
	enabled  bool
}

// Model is the Bubble Tea model for the account form.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	base     model.AccountConfig
	editMode bool
	notice   string
	width    int
	height   int
}

// New creates an idle form.
func New(width, height int) Model {
	return Model{fb: &formBindings{}, width: width, height: height}
}

// StartCreate initializes the form for a new account.
func (m *Model) StartCreate() tea.Cmd {
	m.editMode = false
	m.load(model.DefaultAccountConfig())
	m.form = m.buildForm()
	return m.form.Init()
}

// StartEdit initializes the form with an existing account.
func (m *Model) StartEdit(cfg model.AccountConfig) tea.Cmd {
	m.editMode = true
	m.load(cfg)
	m.form = m.buildForm()
	return m.form.Init()
}

func (m *Model) load(cfg model.AccountConfig) {
	m.base = cfg
	m.notice = ""
	m.fb.username = cfg.Username
	m.fb.password = ""
	m.fb.mode = cfg.NotifyMode
	m.fb.labels = strings.Join(cfg.Labels, ", ")
	m.fb.alerts = alertKeys(cfg.Alerts)
	m.fb.interval = cfg.CheckInterval.String()
	m.fb.enabled = cfg.Enabled
}

// Editing returns the id of the account being edited, if the form is open
// on an existing account.
func (m Model) Editing() (int, bool) {
	if m.form == nil || !m.editMode {
		return 0, false
	}
	return m.base.ID, true
}

// SetNotice shows a problem with the edited account above the form. An
// empty notice hides it.
func (m *Model) SetNotice(s string) {
	m.notice = s
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.form = nil
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	title := "Add Account"
	if m.editMode {
		title = "Edit " + m.base.DisplayName()
	}

	content := theme.TitleStyle.Render(title) + "\n"
	if m.notice != "" {
		content += theme.ErrorStyle.
			Width(m.formWidth()).
			Render(m.notice) + "\n\n"
	}
	content += m.form.View()
	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	passwordDesc := "IMAP password or app password; stored in the system keyring"
	validatePassword := validateRequired("Password")
	if m.editMode {
		passwordDesc = "Leave empty to keep the stored password"
		validatePassword = nil
	}

	password := huh.NewInput().
		Title("Password").
		Description(passwordDesc).
		EchoMode(huh.EchoModePassword).
		Value(&m.fb.password)
	if validatePassword != nil {
		password = password.Validate(validatePassword)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Description("Gmail address; @gmail.com is added when no domain is given").
				Placeholder("you@gmail.com").
				Value(&m.fb.username).
				Validate(validateRequired("Username")),
			password,
			huh.NewConfirm().
				Title("Check this account").
				Affirmative("Yes").
				Negative("No").
				Value(&m.fb.enabled),
		),
		huh.NewGroup(
			huh.NewSelect[model.NotifyMode]().
				Title("Notify about").
				Options(
					huh.NewOption("Unread mail in the inbox", model.NotifyInbox),
					huh.NewOption("Any unread mail", model.NotifyAny),
					huh.NewOption("Unread mail with these labels", model.NotifyLabels),
				).
				Value(&m.fb.mode),
			huh.NewInput().
				Title("Labels").
				Description(fmt.Sprintf("Comma separated, at most %d; used with labels only", model.MaxLabels)).
				Placeholder("Work, Family").
				Value(&m.fb.labels).
				Validate(validateLabels),
			huh.NewMultiSelect[string]().
				Title("Alerts").
				Options(
					huh.NewOption("Popup", alertPopup),
					huh.NewOption("Chime", alertChime),
					huh.NewOption("Periodic bell", alertBell),
					huh.NewOption("Keyboard LED", alertLED),
				).
				Value(&m.fb.alerts),
			huh.NewInput().
				Title("Check interval").
				Description("How often to check, e.g. 60s or 5m").
				Value(&m.fb.interval).
				Validate(validateInterval),
		),
	).WithWidth(m.formWidth())
}

func (m Model) handleSubmit() tea.Cmd {
	cfg, err := buildConfig(m.base, m.fb)
	if err != nil {
		// Validators already rejected bad input; treat this as a cancel.
		return func() tea.Msg { return CancelMsg{} }
	}
	password := m.fb.password
	return func() tea.Msg { return SavedMsg{Account: cfg, Password: password} }
}

// buildConfig applies the form values on top of base.
func buildConfig(base model.AccountConfig, fb *formBindings) (model.AccountConfig, error) {
	cfg := base
	cfg.Username = strings.TrimSpace(fb.username)
	cfg.Enabled = fb.enabled
	cfg.NotifyMode = fb.mode
	if !cfg.NotifyMode.Valid() {
		cfg.NotifyMode = model.NotifyInbox
	}

	labels, err := parseLabels(fb.labels)
	if err != nil {
		return cfg, err
	}
	cfg.Labels = labels
	if cfg.NotifyMode == model.NotifyLabels && len(labels) == 0 {
		return cfg, errors.New("at least one label is required")
	}

	interval, err := parseInterval(fb.interval)
	if err != nil {
		return cfg, err
	}
	cfg.CheckInterval = interval
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = model.DefaultCheckTimeout
	}

	cfg.Alerts = model.AlertConfig{
		Popup:        slices.Contains(fb.alerts, alertPopup),
		Chime:        slices.Contains(fb.alerts, alertChime),
		PeriodicBell: slices.Contains(fb.alerts, alertBell),
		LED:          slices.Contains(fb.alerts, alertLED),
	}
	cfg.Password = ""
	return cfg, nil
}

func alertKeys(a model.AlertConfig) []string {
	var out []string
	if a.Popup {
		out = append(out, alertPopup)
	}
	if a.Chime {
		out = append(out, alertChime)
	}
	if a.PeriodicBell {
		out = append(out, alertBell)
	}
	if a.LED {
		out = append(out, alertLED)
	}
	return out
}

// parseLabels splits a comma-separated label list, dropping blanks.
func parseLabels(s string) ([]string, error) {
	var labels []string
	for _, l := range strings.Split(s, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	if len(labels) > model.MaxLabels {
		return nil, fmt.Errorf("at most %d labels are allowed", model.MaxLabels)
	}
	return labels, nil
}

func parseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid interval, use a duration like 60s or 5m")
	}
	if d < MinCheckInterval {
		return 0, fmt.Errorf("interval must be at least %s", MinCheckInterval)
	}
	return d, nil
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateLabels(s string) error {
	_, err := parseLabels(s)
	return err
}

func validateInterval(s string) error {
	_, err := parseInterval(s)
	return err
}
