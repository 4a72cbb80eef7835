package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mindseye/internal/forms"
	"mindseye/pkg/domain"
	"mindseye/pkg/session"
)

func newLoginCmd(c *cli) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Long: `Log in to the Mind's Eye backend. The session is stored in the session
file so later commands generate into your account.

The password is prompted without echo when --password is omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			var err error
			if email == "" {
				if email, err = c.promptLine(cmd, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = c.promptPassword(cmd, "Password: "); err != nil {
					return err
				}
			}
			// The current login stays in place until the new one succeeds.
			staged, err := session.Open(ctx, session.NewMemoryStorage())
			if err != nil {
				return err
			}
			dialog := forms.NewAuthDialog(c.api, staged, nil)
			dialog.SetEmail(email)
			dialog.SetPassword(password)
			if err := dialog.Submit(ctx); err != nil {
				return err
			}
			if err := c.sessions.Adopt(ctx, staged); err != nil {
				return err
			}

			user, _ := c.sessions.User()
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"authenticated": true, "user": user})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Logged in as %s\n", colorGreen("✓"), colorBold(displayName(user)))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func newRegisterCmd(c *cli) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create a Mind's Eye account. Registration does not log you in; run
'mindseye login' afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			var err error
			if email == "" {
				if email, err = c.promptLine(cmd, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = c.promptPassword(cmd, "Password (min 6 characters): "); err != nil {
					return err
				}
			}

			dialog := forms.NewAuthDialog(c.api, c.sessions, nil)
			dialog.SetMode(forms.ModeRegister)
			dialog.SetEmail(email)
			dialog.SetPassword(password)
			if err := dialog.Submit(ctx); err != nil {
				return err
			}
			notice := dialog.State().Notice
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]string{"email": strings.TrimSpace(email), "notice": notice})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", colorGreen("✓"), notice)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			if err := c.sessions.Logout(ctx); err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]bool{"authenticated": false})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Logged out\n", colorGreen("✓"))
			return nil
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, ok := c.sessions.User()
			authed := c.sessions.IsAuthenticated()
			if c.jsonOut {
				out := map[string]any{"authenticated": authed}
				if ok {
					out["user"] = user
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			if !authed {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", colorBold(displayName(user)))
			return nil
		},
	}
}

func displayName(u domain.User) string {
	switch {
	case u.Name != "" && u.Email != "":
		return u.Name + " <" + u.Email + ">"
	case u.Email != "":
		return u.Email
	case u.Name != "":
		return u.Name
	case u.ID != "":
		return "user " + u.ID
	default:
		return "unknown user"
	}
}
