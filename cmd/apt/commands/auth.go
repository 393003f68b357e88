package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the API access token",
		Long: `Mint and check the short-lived API access token.

The access token is derived from the refresh token and user id in the
settings and is held in memory only.`,
	}

	cmd.AddCommand(newAuthRefreshCommand())
	cmd.AddCommand(newAuthValidateCommand())

	return cmd
}

type authResult struct {
	BaseURL   string `json:"base_url"`
	Refreshed bool   `json:"refreshed"`
	Valid     *bool  `json:"valid,omitempty"`
}

func newAuthRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Mint a new API access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg, err := rt.session.Configure()
			if err != nil {
				return rt.explain(err)
			}
			res := authResult{BaseURL: cfg.AlationURL, Refreshed: rt.session.RefreshToken(ctx)}
			if err := printAuth(cmd, res); err != nil {
				return err
			}
			if !res.Refreshed {
				return errors.New("token refresh failed")
			}
			return nil
		},
	}
}

func newAuthValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Mint an access token and check it against the user endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg, err := rt.session.Configure()
			if err != nil {
				return rt.explain(err)
			}
			res := authResult{BaseURL: cfg.AlationURL, Refreshed: rt.session.RefreshToken(ctx)}
			valid := res.Refreshed && rt.session.ValidateToken(ctx)
			res.Valid = &valid
			if err := printAuth(cmd, res); err != nil {
				return err
			}
			if !valid {
				return errors.New("token validation failed")
			}
			return nil
		},
	}
}

func printAuth(cmd *cobra.Command, res authResult) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, res)
	}
	fmt.Fprintf(out, "Catalog:   %s\n", res.BaseURL)
	fmt.Fprintf(out, "Refreshed: %s\n", okText(res.Refreshed))
	if res.Valid != nil {
		fmt.Fprintf(out, "Valid:     %s\n", okText(*res.Valid))
	}
	return nil
}

func okText(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
