package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/linq/waitlist/src/services"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage the admin account",
	}

	cmd.AddCommand(newAdminResetPasswordCmd())

	return cmd
}

func newAdminResetPasswordCmd() *cobra.Command {
	var (
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set the admin password, creating the account if needed",
		Long: "Overwrites the stored password hash. A running lockout is left in place " +
			"and expires on its own.",
		Example: `  waitlist admin reset-password --username admin
  waitlist admin reset-password --username admin --password 'new secret'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = promptPassword(); err != nil {
					return err
				}
			}
			return runAdminResetPassword(cmd, username, password)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Admin username (defaults to ADMIN_USERNAME)")
	cmd.Flags().StringVar(&password, "password", "", "New password (prompted if omitted)")

	return cmd
}

func promptPassword() (string, error) {
	fmt.Print("New password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

func runAdminResetPassword(cmd *cobra.Command, username, password string) error {
	if len(strings.TrimSpace(password)) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if username == "" {
		username = cfg.AdminUsername
	}

	st, err := openStores(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.StoreDriver, err)
	}
	defer st.close()

	guard := services.NewAccountGuard(st.accounts, services.NewBcryptHasher(cfg.BcryptCost))
	created, err := guard.EnsureAdmin(cmd.Context(), username, password, true)
	if err != nil {
		return err
	}

	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "Created admin account %q\n", username)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Password updated for admin account %q\n", username)
	}
	return nil
}
