package ui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/catalogtools/apt/pkg/app"
	"github.com/catalogtools/apt/pkg/settings"
)

// Options configures Run.
type Options struct {
	// Logs feeds the activity pane. The session logger should write to it.
	Logs *LogBuffer

	// GlamourStyle is the markdown style for the schema pane ("auto",
	// "dark", "light", "notty").
	GlamourStyle string

	// WatchSettings reloads the settings when the file changes on disk.
	WatchSettings bool

	// ProgramOptions are passed to tea.NewProgram.
	ProgramOptions []tea.ProgramOption
}

// Run starts the terminal UI and blocks until the user quits or ctx is
// cancelled.
func Run(ctx context.Context, session *app.Session, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var changes chan SettingsChange
	if opts.WatchSettings && session.SettingsPath() != "" {
		changes = make(chan SettingsChange, 1)
		w, err := settings.Watch(ctx, session.SettingsPath(), func(s *settings.Settings, err error) {
			// Keep only the latest change
			select {
			case <-changes:
			default:
			}
			changes <- SettingsChange{Settings: s, Err: err}
		}, settings.WithLogger(session.Telemetry().Logger.NewComponentLogger("settings")))
		if err != nil {
			return fmt.Errorf("failed to watch settings: %w", err)
		}
		defer w.Close()
	}

	model := NewModel(ctx, session, opts.Logs, changes, opts.GlamourStyle)
	popts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts.ProgramOptions...)

	if _, err := tea.NewProgram(model, popts...).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}
