package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/catalogtools/apt/pkg/settings"
)

func newSettingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and edit the connection settings",
		Long: `Show and edit the settings file.

The settings hold the Alation base URL, the refresh token and the numeric
user id the token belongs to, plus optional client and telemetry tuning.
The file is written with owner-only permissions.`,
	}

	cmd.AddCommand(newSettingsShowCommand())
	cmd.AddCommand(newSettingsSetCommand())
	cmd.AddCommand(newSettingsPathCommand())

	return cmd
}

func newSettingsShowCommand() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Example: `  # Print settings with the refresh token masked
  apt settings show

  # Include the refresh token
  apt settings show --show-secrets`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveSettingsPath()
			if err != nil {
				return err
			}

			s, err := settings.Load(path)
			if err != nil {
				if !errors.Is(err, settings.ErrNotFound) {
					return err
				}
				log.Warn().Str("path", path).Msg("Settings file not found, showing defaults")
				s = settings.Default()
			}
			if !showSecrets {
				s = s.Redacted()
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, newSettingsView(path, s))
			}
			fmt.Fprintf(out, "# %s\n", path)
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(s); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}

			if err := s.Validate(); err != nil {
				fmt.Fprintf(out, "\n# %v\n", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print the refresh token unmasked")

	return cmd
}

// settingsView is the JSON form of the settings file.
type settingsView struct {
	Path         string  `json:"path"`
	AlationURL   string  `json:"alation_url"`
	RefreshToken string  `json:"refresh_token"`
	UserID       string  `json:"user_id"`
	Timeout      string  `json:"timeout"`
	RateLimit    float64 `json:"rate_limit"`
	CachePath    string  `json:"cache_path,omitempty"`
	Valid        bool    `json:"valid"`
	Problem      string  `json:"problem,omitempty"`
}

func newSettingsView(path string, s *settings.Settings) settingsView {
	v := settingsView{
		Path:         path,
		AlationURL:   s.AlationURL,
		RefreshToken: s.RefreshToken,
		UserID:       s.UserID,
		Timeout:      s.Timeout.String(),
		RateLimit:    s.RateLimit,
		CachePath:    s.CachePath,
		Valid:        true,
	}
	if err := s.Validate(); err != nil {
		v.Valid = false
		v.Problem = err.Error()
	}
	return v
}

func newSettingsSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set KEY=VALUE [KEY=VALUE...]",
		Short: "Update settings",
		Long: fmt.Sprintf(`Update one or more settings and save the file.

The result must be complete and valid before it is written, so set all
required values together on first use.

Keys: %s`, strings.Join(settings.Keys, ", ")),
		Example: `  # First-time setup
  apt settings set alation_url=https://acme.alationcloud.com refresh_token=abc123 user_id=42

  # Slow down API calls
  apt settings set rate_limit=2 timeout=1m`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveSettingsPath()
			if err != nil {
				return err
			}

			s, err := settings.Load(path)
			if err != nil {
				if !errors.Is(err, settings.ErrNotFound) {
					return err
				}
				s = settings.Default()
			}

			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("invalid argument %q (want KEY=VALUE)", arg)
				}
				if err := s.Set(strings.TrimSpace(key), value); err != nil {
					return err
				}
			}

			if err := settings.Save(path, s); err != nil {
				return err
			}

			log.Info().Str("path", path).Int("keys", len(args)).Msg("Settings saved")
			return nil
		},
	}

	return cmd
}

func newSettingsPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the settings file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveSettingsPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
