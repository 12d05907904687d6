package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/backtrack/go/clients/backtrack_client"
	"github.com/mcdev12/backtrack/go/internal/users"
)

func main() {
	_ = godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalOptions struct {
	api       string
	credsPath string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "backtrackctl",
		Short:         "BackTrack safety check-in client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.api, "api", envOr("BACKTRACK_API", backtrack_client.DefaultBaseURL), "API base URL")
	root.PersistentFlags().StringVar(&opts.credsPath, "credentials", defaultCredentialsPath(), "credentials file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newRegisterCmd(opts))
	root.AddCommand(newLoginCmd(opts))
	root.AddCommand(newLogoutCmd(opts))
	root.AddCommand(newFriendsCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newTimerCmd(opts))
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// authedClient returns a client carrying the stored token
func authedClient(opts *globalOptions) (*backtrack_client.BacktrackClient, *credentials, error) {
	creds, err := loadCredentials(opts.credsPath)
	if err != nil {
		return nil, nil, err
	}
	api := creds.API
	if api == "" {
		api = opts.api
	}
	c := backtrack_client.NewBacktrackClient(api)
	c.SetToken(creds.Token)
	return c, creds, nil
}

// readPassword takes BACKTRACK_PASSWORD or one line of stdin
func readPassword(cmd *cobra.Command) (string, error) {
	if password := os.Getenv("BACKTRACK_PASSWORD"); password != "" {
		return password, nil
	}
	_, _ = fmt.Fprint(cmd.ErrOrStderr(), "password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newRegisterCmd(opts *globalOptions) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			c := backtrack_client.NewBacktrackClient(opts.api)
			resp, err := c.Register(cmd.Context(), users.RegisterRequest{
				Username: args[0],
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}
			return finishLogin(cmd, opts, resp)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	return cmd
}

func newLoginCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and store the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			c := backtrack_client.NewBacktrackClient(opts.api)
			resp, err := c.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			return finishLogin(cmd, opts, resp)
		},
	}
}

func finishLogin(cmd *cobra.Command, opts *globalOptions, resp *users.AuthResponse) error {
	err := saveCredentials(opts.credsPath, credentials{
		API:      opts.api,
		Username: resp.User.Username,
		Token:    resp.Token,
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (token expires %s)\n",
		resp.User.Username, resp.ExpiresAt.Local().Format(time.DateTime))
	return nil
}

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := authedClient(opts)
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				log.Warn().Err(err).Msg("server logout failed")
			}
			if err := removeCredentials(opts.credsPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newFriendsCmd(opts *globalOptions) *cobra.Command {
	friends := &cobra.Command{Use: "friends", Short: "Manage who can watch your check-ins"}

	friends.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List friends, favorites first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := authedClient(opts)
			if err != nil {
				return err
			}
			list, err := c.ListFriends(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no friends")
				return nil
			}
			for _, f := range list {
				star := " "
				if f.Favorite {
					star = "*"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", star, f.Username)
			}
			return nil
		},
	})

	friends.AddCommand(&cobra.Command{
		Use:   "add <username>",
		Short: "Add a friend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := authedClient(opts)
			if err != nil {
				return err
			}
			f, err := c.AddFriend(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", f.Username)
			return nil
		},
	})

	friends.AddCommand(&cobra.Command{
		Use:   "remove <username>",
		Short: "Remove a friend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := authedClient(opts)
			if err != nil {
				return err
			}
			if err := c.RemoveFriend(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	})

	friends.AddCommand(&cobra.Command{
		Use:   "favorite <username>",
		Short: "Toggle a friend's favorite flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := authedClient(opts)
			if err != nil {
				return err
			}
			f, err := c.ToggleFavorite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s favorite=%t\n", f.Username, f.Favorite)
			return nil
		},
	})
	return friends
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished check-ins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := authedClient(opts)
			if err != nil {
				return err
			}
			alerts, err := c.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(alerts) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no history")
				return nil
			}
			for _, a := range alerts {
				watchers := make([]string, 0, len(a.Recipients))
				for _, r := range a.Recipients {
					watchers = append(watchers, r.Username+"("+r.Status+")")
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%-9s\t%s\t%s\t%s\n",
					a.EndTime.Local().Format(time.DateTime),
					a.Status,
					formatDuration(a.TotalSeconds),
					a.Destination,
					strings.Join(watchers, ", "))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of entries (server default when 0)")
	return cmd
}
