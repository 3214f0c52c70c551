package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewLoginCmd signs the user in and persists the credential pair.
func NewLoginCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and store credentials locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx, *configPath)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), "password: ")
			reader := bufio.NewReader(os.Stdin)
			password, err := reader.ReadString('\n')
			if err != nil {
				return err
			}

			user, err := d.gw.Login(ctx, args[0], strings.TrimSpace(password))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", user.Username)
			return nil
		},
	}
}

// NewLogoutCmd wipes local credential state; the revoke call is best-effort.
func NewLogoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx, *configPath)
			if err != nil {
				return err
			}
			d.gw.Logout(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}
