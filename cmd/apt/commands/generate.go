package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/catalogtools/apt/pkg/catalog"
)

func newGenerateCommand() *cobra.Command {
	var (
		hubID      int64
		folderID   int64
		templateID int64
		format     string
		outFile    string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print the field schema of a template",
		Long: fmt.Sprintf(`Print the field schema of a template as used in a folder.

The hub is looked up from the folder when --hub is omitted, and the
folder's own template is used when --template is omitted.

Formats: %s`, formatNames()),
		Example: `  # Markdown schema of template 7 in folder 120
  apt generate --folder 120 --template 7 --format markdown

  # Write the CSV schema to a file
  apt generate --hub 3 --folder 120 --template 7 --format csv --out schema.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" && jsonOutput {
				format = string(catalog.FormatJSON)
			}
			f, err := catalog.ParseFormat(format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.initialize(ctx); err != nil {
				return err
			}
			if err := selectFolder(cmd, rt, folderID, hubID); err != nil {
				return err
			}
			if templateID != 0 {
				if err := rt.session.SelectTemplate(ctx, templateID); err != nil {
					return err
				}
			} else if rt.session.Selection().TemplateID == 0 {
				return errors.New("the folder has no template of its own; pass --template (see \"apt templates --folder\")")
			}

			// Rendered in full first so a failure leaves no partial output file
			var buf bytes.Buffer
			if err := rt.session.Generate(ctx, &buf, f); err != nil {
				return err
			}
			if outFile == "" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(outFile, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			rt.tel.Logger.WithField("out", outFile).Info("Schema written")
			return nil
		},
	}

	cmd.Flags().Int64Var(&hubID, "hub", 0, "document hub id (default: the folder's hub)")
	cmd.Flags().Int64Var(&folderID, "folder", 0, "folder id")
	cmd.Flags().Int64Var(&templateID, "template", 0, "template id (default: the folder's template)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format (default text)")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write to a file instead of stdout")
	_ = cmd.MarkFlagRequired("folder")

	return cmd
}

func formatNames() string {
	names := make([]string, len(catalog.Formats))
	for i, f := range catalog.Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
