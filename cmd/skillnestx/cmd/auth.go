package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeStore, err := newClient()
		if err != nil {
			return err
		}
		defer closeStore()

		email := loginEmail
		reader := bufio.NewReader(cmd.InOrStdin())
		if email == "" {
			fmt.Fprint(cmd.OutOrStdout(), "email: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			email = strings.TrimSpace(line)
		}
		fmt.Fprint(cmd.OutOrStdout(), "password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		password := strings.TrimSpace(line)

		if err := c.Login(cmd.Context(), email, password); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged in")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and clear the local session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeStore, err := newClient()
		if err != nil {
			return err
		}
		defer closeStore()

		if err := c.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current user and subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeStore, err := newClient()
		if err != nil {
			return err
		}
		defer closeStore()

		if !c.LoggedIn() {
			return fmt.Errorf("not logged in — run `skillnestx login`")
		}
		u, err := c.CurrentUser(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", u.Name, u.Role)
		fmt.Fprintf(cmd.OutOrStdout(), "subscription: %s", u.Entitlement.SubscriptionStatus)
		if u.Entitlement.SubscriptionEnd != nil {
			fmt.Fprintf(cmd.OutOrStdout(), " until %s", u.Entitlement.SubscriptionEnd.Format("2006-01-02"))
		}
		fmt.Fprintln(cmd.OutOrStdout())
		if n := len(u.Entitlement.PurchasedCourseIDs); n > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "purchased courses: %d\n", n)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
