package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kitsuneprints/storefront-backend/internal/auth"
)

const adminPasswordEnv = "STOREFRONT_ADMIN_PASSWORD"

func adminCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}
	cmd.AddCommand(adminCreateCmd(open))
	return cmd
}

func adminCreateCmd(open opener) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		Long:  "Create an admin account. The password is read from " + adminPasswordEnv + ".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv(adminPasswordEnv)
			if strings.TrimSpace(password) == "" {
				return fmt.Errorf("%s must be set", adminPasswordEnv)
			}

			rt, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			provisioner, err := auth.NewAdminProvisioner(rt.db, rt.cfg.Password)
			if err != nil {
				return err
			}
			admin, err := provisioner.Create(cmd.Context(), auth.CreateAdminRequest{
				Email:    strings.TrimSpace(email),
				Name:     strings.TrimSpace(name),
				Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (%s)\n", admin.Email, admin.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
