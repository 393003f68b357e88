package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/catalogtools/apt/pkg/app"
	"github.com/catalogtools/apt/pkg/catalog"
	"github.com/catalogtools/apt/pkg/settings"
)

type pane int

const (
	paneHubs pane = iota
	paneFolders
	paneTemplates
	paneSchema
	paneActivity
	paneCount
)

var paneTitles = [paneCount]string{"Document hubs", "Folders", "Templates", "Schema", "Activity"}

type (
	initializedMsg struct{ err error }
	refetchedMsg   struct{ ok bool }
	tokenMsg       struct{ ok bool }
	generatedMsg   struct {
		markdown string
		err      error
	}
	settingsSavedMsg struct{ err error }
	logUpdatedMsg    struct{}
)

// SettingsChange reports a reload of the settings file.
type SettingsChange struct {
	Settings *settings.Settings
	Err      error
}

// Model is the bubbletea model of the terminal UI.
type Model struct {
	ctx     context.Context
	session *app.Session
	logs    *LogBuffer
	changes <-chan SettingsChange

	styles       Styles
	keys         keyMap
	help         help.Model
	glamourStyle string

	focus          pane
	hubCursor      int
	folderCursor   int
	templateCursor int
	collapsed      map[int64]bool

	schema   viewport.Model
	activity viewport.Model
	form     *settingsForm

	busy      bool
	status    string
	statusErr bool
	width     int
	height    int
}

// NewModel creates the UI model. logs and changes may be nil.
func NewModel(ctx context.Context, session *app.Session, logs *LogBuffer, changes <-chan SettingsChange, glamourStyle string) Model {
	if glamourStyle == "" {
		glamourStyle = "auto"
	}
	return Model{
		ctx:          ctx,
		session:      session,
		logs:         logs,
		changes:      changes,
		styles:       DefaultStyles(),
		keys:         defaultKeyMap(),
		help:         help.New(),
		glamourStyle: glamourStyle,
		collapsed:    make(map[int64]bool),
		schema:       viewport.New(80, 10),
		activity:     viewport.New(80, 6),
		busy:         true,
		status:       "Starting…",
		width:        100,
		height:       36,
	}
}

// Init starts the startup workflow and the background listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.initialize(), m.waitForLogs(), m.waitForSettings())
}

func (m Model) initialize() tea.Cmd {
	return func() tea.Msg {
		return initializedMsg{err: m.session.Initialize(m.ctx)}
	}
}

func (m Model) refetch() tea.Cmd {
	return func() tea.Msg {
		return refetchedMsg{ok: m.session.RefetchCache(m.ctx)}
	}
}

func (m Model) generate() tea.Cmd {
	return func() tea.Msg {
		var buf bytes.Buffer
		err := m.session.Generate(m.ctx, &buf, catalog.FormatMarkdown)
		return generatedMsg{markdown: buf.String(), err: err}
	}
}

func (m Model) saveSettings(s *settings.Settings) tea.Cmd {
	return func() tea.Msg {
		return settingsSavedMsg{err: m.session.SaveSettings(m.ctx, s)}
	}
}

func (m Model) applySettings(s *settings.Settings) tea.Cmd {
	return func() tea.Msg {
		return tokenMsg{ok: m.session.ApplySettings(m.ctx, s)}
	}
}

func (m Model) waitForLogs() tea.Cmd {
	if m.logs == nil {
		return nil
	}
	updates := m.logs.Updates()
	return func() tea.Msg {
		select {
		case <-updates:
			return logUpdatedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m Model) waitForSettings() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	changes := m.changes
	return func() tea.Msg {
		select {
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			return c
		case <-m.ctx.Done():
			return nil
		}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case logUpdatedMsg:
		m.activity.SetContent(m.logs.String())
		m.activity.GotoBottom()
		return m, m.waitForLogs()

	case initializedMsg:
		m.busy = false
		if errors.Is(msg.err, app.ErrNeedsSettings) {
			m.setStatus("Settings are missing or invalid", true)
			m.form = newSettingsForm(m.currentSettings())
			return m, nil
		}
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}
		m.afterCacheChange()
		if m.session.Controls().RefetchEnabled {
			m.setStatus("Ready", false)
		} else {
			m.setStatus("Could not refresh the API access token; check settings", true)
		}
		return m, nil

	case refetchedMsg:
		m.busy = false
		if msg.ok {
			m.afterCacheChange()
			m.setStatus("Cache refetched", false)
		} else {
			m.setStatus("Cache refetch failed; keeping the previous cache", true)
		}
		return m, nil

	case tokenMsg:
		m.busy = false
		if msg.ok {
			m.setStatus("API access token refreshed", false)
		} else {
			m.setStatus("Could not refresh the API access token", true)
		}
		return m, nil

	case generatedMsg:
		m.busy = false
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}
		m.schema.SetContent(m.renderMarkdown(msg.markdown))
		m.schema.GotoTop()
		m.setStatus("Schema generated", false)
		return m, nil

	case settingsSavedMsg:
		m.busy = false
		if msg.err != nil {
			if m.form != nil {
				m.form.err = msg.err.Error()
			}
			m.setStatus("Settings not saved", true)
			return m, nil
		}
		m.form = nil
		controls := m.session.Controls()
		if !controls.RefetchEnabled {
			m.setStatus("Settings saved; token refresh failed", true)
			return m, nil
		}
		if m.session.Cache().Empty() {
			m.busy = true
			m.setStatus("Settings saved; fetching catalog…", false)
			return m, m.refetch()
		}
		m.setStatus("Settings saved; token refreshed", false)
		return m, nil

	case SettingsChange:
		next := m.waitForSettings()
		if msg.Err != nil {
			m.setStatus("Settings file changed but is invalid: "+msg.Err.Error(), true)
			return m, next
		}
		if sameConnection(m.session.Settings(), msg.Settings) {
			return m, next
		}
		m.busy = true
		m.setStatus("Settings file changed; refreshing token…", false)
		return m, tea.Batch(next, m.applySettings(msg.Settings))

	case tea.KeyMsg:
		if m.form != nil {
			return m.updateForm(msg)
		}
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.form = nil
		m.setStatus("Settings unchanged", false)
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}

	submitted, cmd := m.form.update(msg)
	if !submitted {
		return m, cmd
	}

	s := m.form.Settings()
	if err := s.Validate(); err != nil {
		m.form.err = err.Error()
		return m, nil
	}
	m.form.err = ""
	m.busy = true
	m.setStatus("Saving settings…", false)
	return m, m.saveSettings(s)
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	controls := m.session.Controls()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Next):
		m.focus = (m.focus + 1) % paneCount
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		m.focus = (m.focus + paneCount - 1) % paneCount
		return m, nil

	case key.Matches(msg, m.keys.Settings):
		m.form = newSettingsForm(m.currentSettings())
		return m, nil

	case key.Matches(msg, m.keys.Refetch):
		if !controls.RefetchEnabled || m.busy {
			return m, nil
		}
		m.busy = true
		m.setStatus("Refetching cache…", false)
		return m, m.refetch()

	case key.Matches(msg, m.keys.Generate):
		if !controls.GenerateEnabled || m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.generate()
	}

	if !m.paneEnabled(m.focus, controls) {
		return m, nil
	}

	switch m.focus {
	case paneHubs:
		return m.updateHubs(msg)
	case paneFolders:
		return m.updateFolders(msg)
	case paneTemplates:
		return m.updateTemplates(msg)
	case paneSchema:
		var cmd tea.Cmd
		m.schema, cmd = m.schema.Update(msg)
		return m, cmd
	case paneActivity:
		var cmd tea.Cmd
		m.activity, cmd = m.activity.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateHubs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	hubs := m.session.Cache().Hubs()
	// A refetch may have replaced the cache since the cursor last moved
	m.hubCursor = clamp(m.hubCursor, len(hubs))
	switch {
	case key.Matches(msg, m.keys.Up):
		m.hubCursor = clamp(m.hubCursor-1, len(hubs))
	case key.Matches(msg, m.keys.Down):
		m.hubCursor = clamp(m.hubCursor+1, len(hubs))
	case key.Matches(msg, m.keys.Select):
		if len(hubs) == 0 {
			return m, nil
		}
		if err := m.session.SelectHub(m.ctx, hubs[m.hubCursor].ID); err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.folderCursor, m.templateCursor = 0, 0
		m.focus = paneFolders
		m.setStatus("Hub: "+hubs[m.hubCursor].Title, false)
	}
	return m, nil
}

func (m Model) updateFolders(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := visibleFolders(m.session.View().FolderTree, m.collapsed)
	m.folderCursor = clamp(m.folderCursor, len(rows))
	switch {
	case key.Matches(msg, m.keys.Up):
		m.folderCursor = clamp(m.folderCursor-1, len(rows))
	case key.Matches(msg, m.keys.Down):
		m.folderCursor = clamp(m.folderCursor+1, len(rows))
	case key.Matches(msg, m.keys.Expand):
		if len(rows) > 0 {
			delete(m.collapsed, rows[m.folderCursor].ID())
		}
	case key.Matches(msg, m.keys.Collapse):
		if len(rows) > 0 && len(rows[m.folderCursor].Children) > 0 {
			m.collapsed[rows[m.folderCursor].ID()] = true
		}
	case key.Matches(msg, m.keys.Select):
		if len(rows) == 0 {
			return m, nil
		}
		node := rows[m.folderCursor]
		if err := m.session.SelectFolder(m.ctx, node.ID()); err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		view := m.session.View()
		m.templateCursor = 0
		for i, t := range view.Templates {
			if t.ID == view.Selection.TemplateID {
				m.templateCursor = i
			}
		}
		if view.Controls.TemplateEnabled {
			m.focus = paneTemplates
			m.setStatus("Folder: "+node.Title(), false)
		} else {
			m.setStatus("Folder "+node.Title()+" has no templates", true)
		}
	}
	return m, nil
}

func (m Model) updateTemplates(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	templates := m.session.View().Templates
	m.templateCursor = clamp(m.templateCursor, len(templates))
	switch {
	case key.Matches(msg, m.keys.Up):
		m.templateCursor = clamp(m.templateCursor-1, len(templates))
	case key.Matches(msg, m.keys.Down):
		m.templateCursor = clamp(m.templateCursor+1, len(templates))
	case key.Matches(msg, m.keys.Select):
		if len(templates) == 0 {
			return m, nil
		}
		t := templates[m.templateCursor]
		if err := m.session.SelectTemplate(m.ctx, t.ID); err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.setStatus("Template: "+t.Title+" (press g to generate)", false)
	}
	return m, nil
}

func (m Model) paneEnabled(p pane, c app.Controls) bool {
	switch p {
	case paneHubs:
		return c.HubEnabled
	case paneFolders:
		return c.FolderTreeEnabled
	case paneTemplates:
		return c.TemplateEnabled
	default:
		return true
	}
}

func (m *Model) afterCacheChange() {
	m.hubCursor, m.folderCursor, m.templateCursor = 0, 0, 0
	m.collapsed = make(map[int64]bool)
	hubs, folders, templates := m.session.Cache().Counts()
	m.schema.SetContent(m.styles.Muted.Render(
		fmt.Sprintf("%d hubs, %d folders, %d templates cached. Pick a hub, a folder and a template, then press g.", hubs, folders, templates)))
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	m.help.Width = w

	listHeight := listRows(h)
	schemaHeight := (h - listHeight - 10) * 2 / 3
	if schemaHeight < 3 {
		schemaHeight = 3
	}
	activityHeight := h - listHeight - schemaHeight - 12
	if activityHeight < 2 {
		activityHeight = 2
	}

	m.schema.Width = w - 4
	m.schema.Height = schemaHeight
	m.activity.Width = w - 4
	m.activity.Height = activityHeight
}

func (m Model) currentSettings() *settings.Settings {
	if s := m.session.Settings(); s != nil {
		return s
	}
	if s, err := m.session.LoadSettings(); err == nil {
		return s
	}
	return nil
}

func (m Model) renderMarkdown(md string) string {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(max(m.schema.Width-2, 20))}
	if m.glamourStyle == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStylePath(m.glamourStyle))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func sameConnection(a, b *settings.Settings) bool {
	if a == nil || b == nil {
		return false
	}
	return a.AlationURL == b.AlationURL &&
		a.RefreshToken == b.RefreshToken &&
		a.UserID == b.UserID &&
		a.Timeout == b.Timeout &&
		a.RateLimit == b.RateLimit
}

func visibleFolders(nodes []*catalog.FolderNode, collapsed map[int64]bool) []*catalog.FolderNode {
	var out []*catalog.FolderNode
	catalog.Walk(nodes, func(n *catalog.FolderNode) bool {
		out = append(out, n)
		return !collapsed[n.ID()]
	})
	return out
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func listRows(height int) int {
	rows := height / 3
	if rows < 5 {
		rows = 5
	}
	return rows
}
