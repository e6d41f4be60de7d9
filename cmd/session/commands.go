package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-session-client/users"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func newLoginCmd(cli *cliContext) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in with email and password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimSpace(line)
			}

			svc, err := cli.service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.LoginWithPassword(cmd.Context(), args[0], password, ""); err != nil {
				return err
			}
			user, _ := svc.User()
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Name, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")
	return cmd
}

func newGoogleCmd(cli *cliContext) *cobra.Command {
	var idToken string
	cmd := &cobra.Command{
		Use:   "google <provider-access-token>",
		Short: "Sign in with a google access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cli.service(cmd.Context())
			if err != nil {
				return err
			}

			token := &oauth2.Token{AccessToken: args[0], TokenType: "Bearer"}
			if idToken != "" {
				token = token.WithExtra(map[string]interface{}{"id_token": idToken})
			}
			newAccount, err := svc.LoginWithGoogle(cmd.Context(), token, "")
			if err != nil {
				return err
			}
			if newAccount != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No account for %s yet, complete sign-up first\n", newAccount.Email)
				return nil
			}
			user, _ := svc.User()
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Name, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&idToken, "id-token", "", "provider id_token")
	return cmd
}

func newStatusCmd(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cli.service(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !svc.IsLogged() {
				fmt.Fprintln(out, "Not signed in")
				return nil
			}
			user, _ := svc.User()
			fmt.Fprintf(out, "Signed in as %s (%s)\n", user.Name, user.Email)
			if exp, ok := svc.AccessTokenExpiry(); ok {
				state := "valid"
				if svc.Expired() {
					state = "expired"
				}
				fmt.Fprintf(out, "Access token %s, expires %s\n", state, exp.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newProfileCmd(cli *cliContext) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update the signed in user's profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cli.service(cmd.Context())
			if err != nil {
				return err
			}
			if name != "" {
				if _, err := svc.UpdateProfile(cmd.Context(), users.ProfilePatch{Name: &name}); err != nil {
					return err
				}
			}
			user, err := svc.Profile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:      %s\nname:    %s\nemail:   %s\npicture: %s\n", user.ID, user.Name, user.Email, user.PictureURL())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "set a new display name")
	return cmd
}

func newRefreshCmd(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cli.service(cmd.Context())
			if err != nil {
				return err
			}
			if !svc.RefreshAuth(cmd.Context()) {
				return fmt.Errorf("refresh failed, sign in again")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tokens refreshed")
			return nil
		},
	}
}

func newLogoutCmd(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cli.service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
