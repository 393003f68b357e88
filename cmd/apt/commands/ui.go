package commands

import (
	"github.com/spf13/cobra"

	"github.com/catalogtools/apt/pkg/ui"
)

func newUICommand() *cobra.Command {
	var (
		style    string
		noWatch  bool
		logLines int
	)

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Start the interactive terminal UI",
		Long: `Start the terminal UI.

Pick a document hub, then a folder from its tree, then one of the templates
that apply to the folder, and press g to render its field schema. Log output
is shown in the activity pane. Edits to the settings file are picked up
while the UI runs.`,
		Example: `  # Start with a light markdown theme
  apt ui --style light`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logs := ui.NewLogBuffer(logLines)

			rt, err := newRuntime(ctx, logs)
			if err != nil {
				return err
			}
			defer rt.Close()

			return ui.Run(ctx, rt.session, ui.Options{
				Logs:          logs,
				GlamourStyle:  style,
				WatchSettings: !noWatch,
			})
		},
	}

	cmd.Flags().StringVar(&style, "style", "auto", "markdown style for the schema pane (auto, dark, light, notty)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the settings file when it changes")
	cmd.Flags().IntVar(&logLines, "log-lines", ui.DefaultLogLines, "activity lines to keep")

	return cmd
}
