package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nfrund/weatherdash/internal/backend"
	"github.com/nfrund/weatherdash/internal/forms"
)

var (
	authUsername string
	authPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token",
	Long: `Log in with a username and password. The password is read from stdin
when --password is not given.

Examples:
  weatherdash login -u alice
  echo "$PASSWORD" | weatherdash login -u alice`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exchange(cmd, apiClient().Login, "Logged in as %s\n")
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and log in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exchange(cmd, apiClient().Signup, "Account created, logged in as %s\n")
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		if err := p.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the user of the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer p.Close()

		user, err := requireUser(p)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, user.Subject)
		if user.Avatar != "" {
			fmt.Fprintf(out, "avatar: %s\n", user.Avatar)
		}
		return nil
	},
}

type exchangeFunc func(ctx context.Context, creds backend.Credentials) (string, error)

func exchange(cmd *cobra.Command, fn exchangeFunc, done string) error {
	ctx := cmd.Context()

	password := authPassword
	if password == "" {
		var err error
		if password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	creds, err := forms.LoginForm{Username: authUsername, Password: password}.Credentials()
	if err != nil {
		return err
	}

	p, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	raw, err := fn(ctx, creds)
	if err != nil {
		return errors.New(backend.Message(err))
	}
	if err := p.Login(ctx, raw); err != nil {
		return err
	}

	user, _ := p.User()
	fmt.Fprintf(cmd.OutOrStdout(), done, user.Subject)
	return nil
}

func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().StringVarP(&authUsername, "username", "u", "", "account name")
		c.Flags().StringVarP(&authPassword, "password", "p", "", "password (read from stdin when empty)")
		_ = c.MarkFlagRequired("username")
	}
	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd)
}
