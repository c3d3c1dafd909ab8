package main

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func loginCommand(c *cli) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.promptCredentials(cmd, &email, &password); err != nil {
				return err
			}
			app, err := c.application(cmd)
			if err != nil {
				return err
			}
			user, err := app.Login(cmd.Context(), email, password)
			if err != nil {
				return reported(err)
			}
			if c.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), user)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", user.Email)
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

// promptCredentials asks for missing credentials on a terminal.
func (c *cli) promptCredentials(cmd *cobra.Command, email, password *string) error {
	if *email != "" && *password != "" {
		return nil
	}
	in := c.opts.in
	if in == nil {
		in = os.Stdin
	}
	if !isatty.IsTerminal(in.Fd()) {
		return errors.New("--email and --password are required without a terminal")
	}
	var fields []huh.Field
	if *email == "" {
		fields = append(fields, huh.NewInput().Title("Email").Value(email))
	}
	if *password == "" {
		fields = append(fields, huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(password))
	}
	return huh.NewForm(huh.NewGroup(fields...)).
		WithInput(in).
		WithOutput(cmd.ErrOrStderr()).
		RunWithContext(cmd.Context())
}

func logoutCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.application(cmd)
			if err != nil {
				return err
			}
			return app.Logout(cmd.Context())
		},
	}
}

func whoamiCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.application(cmd)
			if err != nil {
				return err
			}
			user, err := app.Client.Me(cmd.Context())
			if err != nil {
				return c.fail(cmd, err, "Failed to load the current user")
			}
			return printItem(c, cmd, user)
		},
	}
}

func statusCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the definitions and the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.application(cmd)
			if err != nil {
				return err
			}
			res := app.Ready(cmd.Context())
			out := cmd.OutOrStdout()
			if c.jsonOutput() {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else {
				names := make([]string, 0, len(res.Checks))
				for name := range res.Checks {
					names = append(names, name)
				}
				slices.Sort(names)
				fmt.Fprintln(out, res.Status)
				for _, name := range names {
					check := res.Checks[name]
					line := fmt.Sprintf("  %-12s %s (%dms)", name, check.Status, check.LatencyMs)
					if check.Error != "" {
						line += ": " + check.Error
					}
					fmt.Fprintln(out, line)
				}
			}
			if !res.Ready() {
				return reported(errors.New("console is not ready"))
			}
			return nil
		},
	}
}
