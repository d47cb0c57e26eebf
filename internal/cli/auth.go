package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/aixgo-dev/travelintel"
	"github.com/aixgo-dev/travelintel/pkg/auth"
)

// EnvPassword supplies the password non-interactively.
const EnvPassword = "TRAVELINTEL_PASSWORD"

// NewLoginCmd creates the 'login' command.
func NewLoginCmd(opts *GlobalOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in with email and password",
		Long: `Sign in and persist the session. The password is read from --password,
then $TRAVELINTEL_PASSWORD, then an interactive prompt.`,
		Example: `  travelintel login ana@example.com`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, opts, args[0], password)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	return cmd
}

func runLogin(cmd *cobra.Command, opts *GlobalOptions, email, password string) error {
	password, err := readPassword(password)
	if err != nil {
		return err
	}
	return withClient(cmd.Context(), opts, func(c *travelintel.Client) error {
		sess, err := c.Auth.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Signed in as %s (id %s)\n", displayName(sess.User), sess.User.ID)
		return nil
	})
}

// NewRegisterCmd creates the 'register' command.
func NewRegisterCmd(opts *GlobalOptions) *cobra.Command {
	var req auth.RegisterRequest

	cmd := &cobra.Command{
		Use:     "register",
		Short:   "Create an account and sign in",
		Example: `  travelintel register --username ana --email ana@example.com`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd, opts, req)
		},
	}

	cmd.Flags().StringVar(&req.Username, "username", "", "Username")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (prompted when omitted)")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "Phone number (optional)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runRegister(cmd *cobra.Command, opts *GlobalOptions, req auth.RegisterRequest) error {
	password, err := readPassword(req.Password)
	if err != nil {
		return err
	}
	req.Password = password
	return withClient(cmd.Context(), opts, func(c *travelintel.Client) error {
		sess, err := c.Auth.Register(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Registered and signed in as %s\n", displayName(sess.User))
		return nil
	})
}

// NewOTPCmd creates the 'otp' command group.
func NewOTPCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "otp",
		Short: "Sign in with a one-time code sent by SMS",
	}

	send := &cobra.Command{
		Use:     "send <phone>",
		Short:   "Request a one-time code",
		Example: `  travelintel otp send +15550100`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(c *travelintel.Client) error {
				if err := c.Auth.SendOneTimeCode(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Code sent to %s\n", args[0])
				return nil
			})
		},
	}

	verify := &cobra.Command{
		Use:     "verify <phone> <code>",
		Short:   "Sign in with a received code",
		Example: `  travelintel otp verify +15550100 123456`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(c *travelintel.Client) error {
				sess, err := c.Auth.VerifyOneTimeCode(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Signed in as %s\n", displayName(sess.User))
				return nil
			})
		},
	}

	cmd.AddCommand(send, verify)
	return cmd
}

// NewLogoutCmd creates the 'logout' command.
func NewLogoutCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(c *travelintel.Client) error {
				if !c.Auth.IsAuthenticated() {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				if err := c.Auth.Logout(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Signed out")
				return nil
			})
		},
	}
}

// NewWhoamiCmd creates the 'whoami' command.
func NewWhoamiCmd(opts *GlobalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(c *travelintel.Client) error {
				return runWhoami(cmd.OutOrStdout(), c, asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the user record as JSON")
	return cmd
}

func runWhoami(w io.Writer, c *travelintel.Client, asJSON bool) error {
	sess, ok := c.Auth.Current()
	if !ok {
		fmt.Fprintln(w, "Not signed in")
		return nil
	}
	if asJSON {
		return printJSON(w, sess.User)
	}
	fmt.Fprintf(w, "User:     %s\n", displayName(sess.User))
	fmt.Fprintf(w, "ID:       %s\n", sess.User.ID)
	if sess.User.Email != "" {
		fmt.Fprintf(w, "Email:    %s\n", sess.User.Email)
	}
	if sess.User.Phone != "" {
		fmt.Fprintf(w, "Phone:    %s\n", sess.User.Phone)
	}
	fmt.Fprintf(w, "Session:  %s\n", c.Identity.SessionID())
	return nil
}

func displayName(u auth.User) string {
	if u.Username != "" {
		return u.Username
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID.String()
}

// readPassword returns flagValue, then $TRAVELINTEL_PASSWORD, then prompts.
func readPassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv(EnvPassword); v != "" {
		return v, nil
	}

	line := liner.NewLiner()
	defer func() { _ = line.Close() }()
	line.SetCtrlCAborts(true)

	pw, err := line.PasswordPrompt("Password: ")
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errors.New("aborted")
	}
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	pw = strings.TrimRight(pw, "\r\n")
	if pw == "" {
		return "", errors.New("password is required")
	}
	return pw, nil
}
