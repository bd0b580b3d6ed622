package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/posts/internal/auth"
	"github.com/idilsaglam/posts/internal/ui"
)

var errNotLoggedIn = errors.New("not logged in (run `posts auth login`)")

func (a *app) authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the API token",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return &exitError{code: 2}
		},
	}

	login := &cobra.Command{
		Use:   "login [token]",
		Short: "Store a token (read from stdin when omitted)",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					token = sc.Text()
				}
				if err := sc.Err(); err != nil {
					return err
				}
			}
			if err := auth.SetToken(token, nil); err != nil {
				if errors.Is(err, auth.ErrEmptyToken) {
					return usageErrorf("auth login: %v", err)
				}
				return err
			}
			ui.OK("logged in")
			return nil
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := auth.DeleteToken(); err != nil {
				return err
			}
			ui.OK("logged out")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show where the token comes from and when it expires",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ti, err := auth.GetToken()
			if err != nil {
				return err
			}
			if ti == nil {
				ui.Info("not logged in")
				return nil
			}
			line := fmt.Sprintf("logged in (%s)", ti.Source)
			if ti.ExpiresAt != nil {
				if ti.ExpiresAt.Before(time.Now()) {
					ui.Warn(fmt.Sprintf("token expired %s", ti.ExpiresAt.Format(time.RFC3339)))
					return &exitError{code: 1}
				}
				line += ", expires " + ti.ExpiresAt.Format(time.RFC3339)
			}
			ui.OK(line)
			return nil
		},
	}

	whoami := &cobra.Command{
		Use:   "whoami",
		Short: "Print the token's claims",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ti, err := auth.GetToken()
			if err != nil {
				return err
			}
			if ti == nil {
				return errNotLoggedIn
			}
			payload, ok := auth.Claims(ti.Token)
			if !ok {
				ui.Info("opaque token, no claims")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(payload))
			return nil
		},
	}

	cmd.AddCommand(login, logout, status, whoami)
	return cmd
}
