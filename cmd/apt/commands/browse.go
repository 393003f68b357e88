package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/catalogtools/apt/pkg/catalog"
)

func newHubsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hubs",
		Short: "List document hubs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.initialize(ctx); err != nil {
				return err
			}

			cache := rt.session.Cache()
			hubs := cache.Hubs()
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, hubs)
			}

			tw := newTable(out)
			fmt.Fprintln(tw, "ID\tTITLE\tFOLDERS\tTEMPLATES")
			for _, h := range hubs {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", h.ID, h.Title, len(cache.Folders(h.ID)), len(h.TemplateIDs))
			}
			return tw.Flush()
		},
	}
}

func newFoldersCommand() *cobra.Command {
	var hubID int64

	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Show the folder tree of a document hub",
		Example: `  # Print the folder tree of hub 3
  apt folders --hub 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.initialize(ctx); err != nil {
				return err
			}
			if err := rt.session.SelectHub(ctx, hubID); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, rt.session.Cache().Folders(hubID))
			}

			tree := rt.session.View().FolderTree
			if len(tree) == 0 {
				fmt.Fprintln(out, "(no folders)")
				return nil
			}
			catalog.Walk(tree, func(n *catalog.FolderNode) bool {
				fmt.Fprintf(out, "%s%s  [%d]\n", strings.Repeat("  ", n.Depth), n.Title(), n.ID())
				return true
			})
			return nil
		},
	}

	cmd.Flags().Int64Var(&hubID, "hub", 0, "document hub id")
	_ = cmd.MarkFlagRequired("hub")

	return cmd
}

func newTemplatesCommand() *cobra.Command {
	var folderID int64

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the templates that apply to a folder",
		Long: `List the templates that apply to a folder: the folder's own template,
marked with *, followed by the templates of its document hub.`,
		Example: `  # Templates usable in folder 120
  apt templates --folder 120`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.initialize(ctx); err != nil {
				return err
			}
			if err := selectFolder(cmd, rt, folderID, 0); err != nil {
				return err
			}

			view := rt.session.View()
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, view.Templates)
			}
			if len(view.Templates) == 0 {
				fmt.Fprintln(out, "(no templates)")
				return nil
			}

			tw := newTable(out)
			fmt.Fprintln(tw, "\tID\tTITLE\tFIELDS")
			for _, t := range view.Templates {
				mark := ""
				if t.ID == view.Selection.TemplateID {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%d\n", mark, t.ID, t.Title, len(t.Fields))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int64Var(&folderID, "folder", 0, "folder id")
	_ = cmd.MarkFlagRequired("folder")

	return cmd
}

// selectFolder selects a folder and its hub. When hubID is zero the hub
// is looked up from the cache.
func selectFolder(cmd *cobra.Command, rt *runtime, folderID, hubID int64) error {
	ctx := cmd.Context()
	if hubID == 0 {
		hub, ok := rt.session.Cache().HubForFolder(folderID)
		if !ok {
			return fmt.Errorf("folder %d is not in the cache", folderID)
		}
		hubID = hub.ID
	}
	if err := rt.session.SelectHub(ctx, hubID); err != nil {
		return err
	}
	return rt.session.SelectFolder(ctx, folderID)
}
