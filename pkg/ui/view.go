package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/catalogtools/apt/pkg/alation"
	"github.com/catalogtools/apt/pkg/app"
	"github.com/catalogtools/apt/pkg/catalog"
)

// View renders the UI.
func (m Model) View() string {
	header := m.styles.Header.Render("APT · Catalog Power Tools")
	if s := m.session.Settings(); s != nil {
		header += m.styles.Muted.Render(s.AlationURL)
	}

	if m.form != nil {
		body := m.form.view(m.styles, m.session.SettingsPath())
		return lipgloss.JoinVertical(lipgloss.Left, header, body, m.statusLine())
	}

	view := m.session.View()
	colWidth := max((m.width-6)/3, 20)
	rows := listRows(m.height)

	lists := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderPane(paneHubs, view.Controls, colWidth, rows, m.hubLines(view.Hubs, view.Selection, rows)),
		m.renderPane(paneFolders, view.Controls, colWidth, rows, m.folderLines(view.FolderTree, view.Selection, rows)),
		m.renderPane(paneTemplates, view.Controls, colWidth, rows, m.templateLines(view.Templates, view.Selection, rows)),
	)

	buttons := lipgloss.JoinHorizontal(lipgloss.Top,
		m.button("Refetch cache (r)", view.Controls.RefetchEnabled),
		" ",
		m.button("Generate (g)", view.Controls.GenerateEnabled),
		" ",
		m.button("Settings (s)", true),
	)

	schema := m.paneStyle(paneSchema, true).Width(m.width - 2).Render(
		m.styles.PaneTitle.Render(paneTitles[paneSchema]) + "\n" + m.schema.View())
	activity := m.paneStyle(paneActivity, true).Width(m.width - 2).Render(
		m.styles.PaneTitle.Render(paneTitles[paneActivity]) + "\n" + m.activity.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lists,
		buttons,
		schema,
		activity,
		m.statusLine(),
		m.help.View(m.keys),
	)
}

func (m Model) statusLine() string {
	status := m.status
	if m.busy {
		status = "⟳ " + status
	}
	if m.statusErr {
		return m.styles.Error.Render(status)
	}
	return m.styles.Success.Render(status)
}

func (m Model) button(label string, enabled bool) string {
	if enabled && !m.busy {
		return m.styles.Button.Render(label)
	}
	return m.styles.ButtonOff.Render(label)
}

func (m Model) paneStyle(p pane, enabled bool) lipgloss.Style {
	st := m.styles.Pane
	if m.focus == p {
		st = m.styles.FocusedPane
	}
	if !enabled {
		st = st.Inherit(m.styles.Disabled)
	}
	return st
}

func (m Model) renderPane(p pane, c app.Controls, width, rows int, lines []string) string {
	enabled := m.paneEnabled(p, c)
	title := m.styles.PaneTitle.Render(paneTitles[p])
	body := strings.Join(lines, "\n")
	if !enabled {
		title = m.styles.Disabled.Render(paneTitles[p])
		body = m.styles.Disabled.Render(body)
	}
	return m.paneStyle(p, enabled).Width(width).Height(rows + 1).Render(title + "\n" + body)
}

func (m Model) hubLines(hubs []alation.DocumentHub, sel app.Selection, rows int) []string {
	if len(hubs) == 0 {
		return []string{"(no cache loaded)"}
	}
	lines := make([]string, len(hubs))
	for i, h := range hubs {
		lines[i] = m.item(h.Title, i == m.hubCursor && m.focus == paneHubs, h.ID == sel.HubID)
	}
	return window(lines, m.hubCursor, rows)
}

func (m Model) folderLines(tree []*catalog.FolderNode, sel app.Selection, rows int) []string {
	visible := visibleFolders(tree, m.collapsed)
	if len(visible) == 0 {
		return []string{"(select a hub)"}
	}
	lines := make([]string, len(visible))
	for i, n := range visible {
		marker := "  "
		if len(n.Children) > 0 {
			marker = "▾ "
			if m.collapsed[n.ID()] {
				marker = "▸ "
			}
		}
		label := strings.Repeat("  ", n.Depth) + marker + n.Title()
		lines[i] = m.item(label, i == m.folderCursor && m.focus == paneFolders, n.ID() == sel.FolderID)
	}
	return window(lines, m.folderCursor, rows)
}

func (m Model) templateLines(templates []alation.Template, sel app.Selection, rows int) []string {
	if len(templates) == 0 {
		return []string{"(select a folder)"}
	}
	lines := make([]string, len(templates))
	for i, t := range templates {
		label := fmt.Sprintf("%s (%d fields)", t.Title, len(t.Fields))
		lines[i] = m.item(label, i == m.templateCursor && m.focus == paneTemplates, t.ID == sel.TemplateID)
	}
	return window(lines, m.templateCursor, rows)
}

func (m Model) item(label string, cursor, selected bool) string {
	cur, mark := " ", " "
	if cursor {
		cur = m.styles.Cursor.Render("›")
	}
	if selected {
		mark = "●"
		label = m.styles.Selected.Render(label)
	}
	return cur + mark + " " + label
}

// window returns at most rows lines keeping the cursor visible.
func window(lines []string, cursor, rows int) []string {
	if len(lines) <= rows {
		return lines
	}
	start := cursor - rows/2
	if start < 0 {
		start = 0
	}
	if start+rows > len(lines) {
		start = len(lines) - rows
	}
	return lines[start : start+rows]
}
