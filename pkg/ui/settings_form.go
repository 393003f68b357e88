package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/catalogtools/apt/pkg/settings"
)

const (
	fieldURL = iota
	fieldToken
	fieldUser
	fieldCount
)

var fieldLabels = [fieldCount]string{"Alation URL", "Refresh token", "User ID"}

// settingsForm edits the connection settings. Values outside the form
// are carried over from base unchanged.
type settingsForm struct {
	inputs [fieldCount]textinput.Model
	focus  int
	base   settings.Settings
	err    string
}

func newSettingsForm(current *settings.Settings) *settingsForm {
	base := settings.Default()
	if current != nil {
		base = current
	}

	f := &settingsForm{base: *base}
	values := [fieldCount]string{base.AlationURL, base.RefreshToken, base.UserID}
	placeholders := [fieldCount]string{"https://acme.alationcloud.com", "refresh token", "42"}

	for i := range f.inputs {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.SetValue(values[i])
		ti.CharLimit = 512
		ti.Width = 48
		ti.Prompt = ""
		f.inputs[i] = ti
	}
	f.inputs[fieldToken].EchoMode = textinput.EchoPassword
	f.inputs[fieldToken].EchoCharacter = '•'
	f.inputs[fieldUser].Validate = func(s string) error {
		for _, r := range s {
			if r < '0' || r > '9' {
				return errNotNumeric
			}
		}
		return nil
	}
	f.inputs[f.focus].Focus()
	return f
}

type formError string

func (e formError) Error() string { return string(e) }

const errNotNumeric = formError("user id must be numeric")

// Settings builds the edited settings.
func (f *settingsForm) Settings() *settings.Settings {
	s := f.base
	s.AlationURL = strings.TrimSpace(f.inputs[fieldURL].Value())
	s.RefreshToken = strings.TrimSpace(f.inputs[fieldToken].Value())
	s.UserID = strings.TrimSpace(f.inputs[fieldUser].Value())
	return &s
}

func (f *settingsForm) setFocus(i int) {
	f.inputs[f.focus].Blur()
	f.focus = (i + fieldCount) % fieldCount
	f.inputs[f.focus].Focus()
}

// update handles a key for the focused input. It reports whether the form
// was submitted.
func (f *settingsForm) update(msg tea.KeyMsg) (submitted bool, cmd tea.Cmd) {
	switch msg.String() {
	case "tab", "down":
		f.setFocus(f.focus + 1)
		return false, nil
	case "shift+tab", "up":
		f.setFocus(f.focus - 1)
		return false, nil
	case "enter":
		if f.focus < fieldCount-1 {
			f.setFocus(f.focus + 1)
			return false, nil
		}
		return true, nil
	case "ctrl+s":
		return true, nil
	}

	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return false, cmd
}

func (f *settingsForm) view(st Styles, path string) string {
	var sb strings.Builder
	sb.WriteString(st.PaneTitle.Render("Settings"))
	sb.WriteString("\n")
	sb.WriteString(st.Muted.Render(path))
	sb.WriteString("\n\n")
	for i, in := range f.inputs {
		label := st.Label.Render(fieldLabels[i])
		if i == f.focus {
			label = st.Cursor.Render("› ") + label
		} else {
			label = "  " + label
		}
		sb.WriteString(label + in.View() + "\n")
	}
	if f.err != "" {
		sb.WriteString("\n" + st.Error.Render(f.err) + "\n")
	}
	sb.WriteString("\n" + st.Muted.Render("enter/ctrl+s save · tab next field · esc cancel"))
	return st.Form.Render(sb.String())
}
