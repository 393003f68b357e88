package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "apt",
		Short: "APT - Alation Power Tools",
		Long: `APT browses the document hubs, folders and custom templates of an
Alation catalog and prints the field schema of a template.

Run "apt ui" for the interactive terminal UI, or use the subcommands to
work non-interactively:
  - settings: show and edit the connection settings
  - auth: refresh and validate the API access token
  - cache: refetch and inspect the local catalog cache
  - hubs, folders, templates: browse the cached catalog
  - generate: print the field schema of a template`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newSettingsCommand())
	rootCmd.AddCommand(newAuthCommand())
	rootCmd.AddCommand(newCacheCommand())
	rootCmd.AddCommand(newHubsCommand())
	rootCmd.AddCommand(newFoldersCommand())
	rootCmd.AddCommand(newTemplatesCommand())
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newActivityCommand())
	rootCmd.AddCommand(newUICommand())

	return rootCmd
}
