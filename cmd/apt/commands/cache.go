package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/catalogtools/apt/pkg/stores"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local catalog cache",
		Long: `Manage the local copy of the catalog.

The cache holds every document hub, the folders of each hub and all custom
templates. It is fetched in one pass and kept in a SQLite database so later
runs start without fetching again.`,
	}

	cmd.AddCommand(newCacheRefetchCommand())
	cmd.AddCommand(newCacheShowCommand())
	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheRefetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refetch",
		Short: "Fetch hubs, folders and templates and replace the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.configure(ctx); err != nil {
				return err
			}
			if !rt.session.RefetchCache(ctx) {
				return errors.New("cache refetch failed; the previous cache is kept")
			}

			cache := rt.session.Cache()
			hubs, folders, templates := cache.Counts()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"fetched_at": cache.FetchedAt(),
					"hubs":       hubs,
					"folders":    folders,
					"templates":  templates,
					"persisted":  rt.store != nil,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d hubs, %d folders, %d templates\n", hubs, folders, templates)
			return nil
		},
	}
}

func newCacheShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Describe the persisted cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.store == nil {
				return errors.New("the cache store is not available")
			}
			info, err := rt.store.LatestSnapshotInfo(ctx)
			if err != nil {
				if errors.Is(err, stores.ErrNoSnapshot) {
					return errors.New(`nothing cached yet; run "apt cache refetch"`)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, info)
			}
			tw := newTable(out)
			fmt.Fprintf(tw, "Snapshot:\t%s\n", info.ID)
			fmt.Fprintf(tw, "Catalog:\t%s\n", info.BaseURL)
			fmt.Fprintf(tw, "Fetched:\t%s (%s ago)\n", info.FetchedAt.Local().Format(time.DateTime),
				time.Since(info.FetchedAt).Round(time.Second))
			fmt.Fprintf(tw, "Hubs:\t%d\n", info.HubCount)
			fmt.Fprintf(tw, "Folders:\t%d\n", info.FolderCount)
			fmt.Fprintf(tw, "Templates:\t%d\n", info.TemplateCount)
			return tw.Flush()
		},
	}
}

func newCacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the persisted cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.store == nil {
				return errors.New("the cache store is not available")
			}
			if err := rt.store.ClearSnapshots(ctx); err != nil {
				return err
			}
			rt.tel.Logger.Info("Cache cleared")
			return nil
		},
	}
}
