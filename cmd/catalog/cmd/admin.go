package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mawsim/catalog/internal/auth"
	"github.com/mawsim/catalog/internal/domain/catalog"
)

var adminUser string

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Editorial commands",
	Long: `Editorial commands against the canonical catalog. Every command requires
--user plus the ADMIN_PASSWORD environment variable, checked against the
configured allowlist and password hash, and appends an audit record.`,
}

// adminApp authenticates the operator before handing back the wiring.
func adminApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return nil, err
	}

	verifier := auth.NewAdmin(a.cfg.Admin.Allowlist, a.cfg.Admin.PasswordHash)
	if err := verifier.Verify(adminUser, os.Getenv("ADMIN_PASSWORD")); err != nil {
		a.Close()
		return nil, fmt.Errorf("admin auth: %w", err)
	}
	return a, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

var adminVerifyCmd = &cobra.Command{
	Use:   "verify <event-id>",
	Short: "Mark an event verified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		notes, _ := cmd.Flags().GetString("notes")
		unset, _ := cmd.Flags().GetBool("unset")
		return a.editorial.Verify(cmd.Context(), adminUser, id, !unset, notes)
	},
}

var adminPinCmd = &cobra.Command{
	Use:   "pin <event-id>",
	Short: "Pin an event above organic results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		unset, _ := cmd.Flags().GetBool("unset")
		return a.editorial.Pin(cmd.Context(), adminUser, id, !unset, reason)
	},
}

var adminSignificanceCmd = &cobra.Command{
	Use:   "significance <event-id> <score>",
	Short: "Set cultural significance (0-10)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		score, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid score %q", args[1])
		}
		return a.editorial.SetSignificance(cmd.Context(), adminUser, id, score)
	},
}

var adminStatusCmd = &cobra.Command{
	Use:   "status <event-id> <status>",
	Short: "Set event status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		sourceURL, _ := cmd.Flags().GetString("source-url")
		return a.editorial.UpdateStatus(cmd.Context(), adminUser, id, catalog.EventStatus(args[1]), sourceURL)
	},
}

var adminMergeCmd = &cobra.Command{
	Use:   "merge <keep-id> <lose-id>",
	Short: "Merge two events, keeping the first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		keepID, err := parseID(args[0])
		if err != nil {
			return err
		}
		loseID, err := parseID(args[1])
		if err != nil {
			return err
		}
		return a.editorial.Merge(cmd.Context(), adminUser, keepID, loseID)
	},
}

var adminArchiveCmd = &cobra.Command{
	Use:   "archive <event-id>",
	Short: "Archive an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		return a.editorial.Archive(cmd.Context(), adminUser, id, reason)
	},
}

var adminReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List candidates waiting on review",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		limit, _ := cmd.Flags().GetInt("limit")
		candidates, err := a.editorial.ListReviewQueue(cmd.Context(), limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, c := range candidates {
			matched := "-"
			if c.MatchedEventID != nil {
				matched = strconv.FormatInt(*c.MatchedEventID, 10)
			}
			fmt.Fprintf(out, "%d\t%s\t%s\tcity=%s\tmatched=%s\n",
				c.ID, c.RawName, c.StartDate.Format("2006-01-02"), c.CityName, matched)
		}
		return nil
	},
}

var adminRejectCmd = &cobra.Command{
	Use:   "reject <candidate-id>",
	Short: "Reject a review-queue candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		return a.editorial.RejectCandidate(cmd.Context(), adminUser, id, reason)
	},
}

func init() {
	adminCmd.PersistentFlags().StringVar(&adminUser, "user", "", "admin username")
	_ = adminCmd.MarkPersistentFlagRequired("user")

	adminVerifyCmd.Flags().String("notes", "", "verification notes")
	adminVerifyCmd.Flags().Bool("unset", false, "clear the verified flag")
	adminPinCmd.Flags().String("reason", "", "pin reason")
	adminPinCmd.Flags().Bool("unset", false, "clear the pin")
	adminStatusCmd.Flags().String("source-url", "", "source supporting the change")
	adminArchiveCmd.Flags().String("reason", "", "archive reason")
	adminReviewCmd.Flags().Int("limit", 50, "max candidates to list")
	adminRejectCmd.Flags().String("reason", "", "rejection reason")

	adminCmd.AddCommand(adminVerifyCmd)
	adminCmd.AddCommand(adminPinCmd)
	adminCmd.AddCommand(adminSignificanceCmd)
	adminCmd.AddCommand(adminStatusCmd)
	adminCmd.AddCommand(adminMergeCmd)
	adminCmd.AddCommand(adminArchiveCmd)
	adminCmd.AddCommand(adminReviewCmd)
	adminCmd.AddCommand(adminRejectCmd)
}
