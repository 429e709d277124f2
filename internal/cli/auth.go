package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const passwordEnv = "COLLECTDESK_PASSWORD"

func newLoginCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in with email and password. The password is read from --password,
the COLLECTDESK_PASSWORD environment variable, or stdin with --password-stdin.

Examples:
  collectctl login --email agent@example.com --password-stdin
  collectctl --mode simulation login --email admin@example.com --password password123`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("--email is required")
			}
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}

			user, err := a.provider.Login(cmd.Context(), email, password)
			if err != nil {
				if msg := a.provider.Error(); msg != "" {
					return errors.New(msg)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s> (%s)\n", user.Name, user.Email, user.Role)
			return nil
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	if fromStdin, _ := cmd.Flags().GetBool("password-stdin"); fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	if password, _ := cmd.Flags().GetString("password"); password != "" {
		return password, nil
	}
	if password := os.Getenv(passwordEnv); password != "" {
		return password, nil
	}
	return "", fmt.Errorf("--password, --password-stdin or %s is required", passwordEnv)
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.provider.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			user := a.provider.User()
			if user == nil {
				fmt.Fprintln(out, "Not logged in.")
				return nil
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(user)
			}

			fmt.Fprintf(out, "User ID:     %s\n", user.ID)
			fmt.Fprintf(out, "Email:       %s\n", user.Email)
			fmt.Fprintf(out, "Name:        %s\n", user.Name)
			fmt.Fprintf(out, "Role:        %s\n", user.Role)
			if user.ClientID != nil {
				fmt.Fprintf(out, "Client:      %s\n", *user.ClientID)
			}
			fmt.Fprintf(out, "Permissions: %s\n", strings.Join(user.Permissions, ", "))
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the user as JSON")
	return cmd
}

func newRefreshCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.client.RefreshToken(cmd.Context())
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
			if show, _ := cmd.Flags().GetBool("show"); show {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Access token refreshed.")
			return nil
		},
	}
	cmd.Flags().Bool("show", false, "print the new access token")
	return cmd
}
