package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the search collection from the database",
	Long: `Drop and recreate the search collection, then stream every indexable
event into it. Incremental projection updates are suspended for the duration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		indexed, failed, err := a.sync.FullRebuild(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed=%d errors=%d\n", indexed, failed)
		if failed > 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "some documents were rejected; see logs")
		}
		return nil
	},
}
