package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"collectdesk/internal/api"
	"collectdesk/internal/authclient"
	"collectdesk/internal/guard"
	"collectdesk/internal/rbac"
)

var ErrDenied = errors.New("access denied")

const navigationPath = "/api/v1/me/navigation"

func newCanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "can <permission>...",
		Short: "Check permissions for the signed-in user",
		Long: `Check one or more permissions. Exits non-zero when any is denied.
Unknown permission names are denied.

Examples:
  collectctl can cases.view
  collectctl can users.manage settings.manage`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			denied := 0
			for _, name := range args {
				p, known := rbac.ParsePermission(name)
				switch {
				case !known:
					fmt.Fprintf(out, "%s\tdenied (unknown permission)\n", name)
					denied++
				case a.provider.CanAccess(p):
					fmt.Fprintf(out, "%s\tallowed\n", name)
				default:
					fmt.Fprintf(out, "%s\tdenied\n", name)
					denied++
				}
			}
			if denied > 0 {
				return ErrDenied
			}
			return nil
		},
	}
}

func newGuardCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Show how a protected route would treat the current session",
		Long: `Evaluate a route guard against the current session and print the outcome:
allow, redirect_login, access_denied or redirect_fallback.

Examples:
  collectctl guard --path /admin/users --roles ADMIN
  collectctl guard --path /gdpr --permission gdpr.manage --redirect-on-deny --fallback /`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			path, _ := flags.GetString("path")
			roleNames, _ := flags.GetStringSlice("roles")
			permission, _ := flags.GetString("permission")
			fallback, _ := flags.GetString("fallback")
			redirect, _ := flags.GetBool("redirect-on-deny")

			opts := guard.Options{
				RequiredPermission: rbac.Permission(permission),
				FallbackURL:        fallback,
				RedirectOnDeny:     redirect,
			}
			if flags.Changed("roles") {
				opts.AllowedRoles = []rbac.Role{}
				for _, name := range roleNames {
					role, err := rbac.ParseRole(strings.TrimSpace(name))
					if err != nil {
						return err
					}
					opts.AllowedRoles = append(opts.AllowedRoles, role)
				}
			}

			decision := guard.Evaluate(a.provider.State(), path, opts)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, decision.Outcome)
			if decision.Location != "" {
				fmt.Fprintf(out, "location: %s\n", decision.Location)
			}
			if decision.Reason != "" {
				fmt.Fprintf(out, "reason: %s\n", decision.Reason)
			}
			if !decision.Allowed() {
				return ErrDenied
			}
			return nil
		},
	}
	cmd.Flags().String("path", "/", "requested path")
	cmd.Flags().StringSlice("roles", nil, "allowed roles (comma separated)")
	cmd.Flags().String("permission", "", "required permission")
	cmd.Flags().String("fallback", "", "fallback URL for --redirect-on-deny")
	cmd.Flags().Bool("redirect-on-deny", false, "redirect denied users instead of showing access denied")
	return cmd
}

func newNavigationCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "navigation",
		Short: "List the menu entries the server shows the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.provider.IsAuthenticated() {
				return fmt.Errorf("not logged in")
			}
			if authclient.Mode(a.cfg.Client.Mode) == authclient.ModeSimulation {
				return fmt.Errorf("navigation needs a server; not available in simulation mode")
			}

			resp, err := a.fetchNavigation(cmd.Context())
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", item.Key, item.Label, item.Path)
			}
			return nil
		},
	}
}

// fetchNavigation retries once with a refreshed access token on 401.
func (a *app) fetchNavigation(ctx context.Context) (api.NavigationResponse, error) {
	var resp api.NavigationResponse
	err := a.client.Requester().Do(ctx, http.MethodGet, navigationPath, nil, &resp)
	if authclient.StatusCode(err) != http.StatusUnauthorized {
		return resp, err
	}

	a.log.Debug().Msg("access token rejected, refreshing")
	if _, refreshErr := a.client.RefreshToken(ctx); refreshErr != nil {
		return resp, fmt.Errorf("session expired, log in again: %w", refreshErr)
	}
	err = a.client.Requester().Do(ctx, http.MethodGet, navigationPath, nil, &resp)
	return resp, err
}
