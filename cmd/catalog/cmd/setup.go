package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mawsim/catalog/internal/auth"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "One-time setup helpers",
}

var setupHashCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Produce a bcrypt hash for ADMIN_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var setupSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Create the search collection if missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.sync.EnsureSchema(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "search collection ready")
		return nil
	},
}

func init() {
	setupCmd.AddCommand(setupHashCmd)
	setupCmd.AddCommand(setupSearchCmd)
}
