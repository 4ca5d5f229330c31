package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mawsim/catalog/internal/adapters"
	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/pipeline"
)

var manualFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion cycle",
	Long: `Run one ingestion cycle over every configured source, or import a manual
payload with --manual-file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var report *pipeline.Report
		if manualFile != "" {
			report, err = runManualImport(cmd, a, manualFile)
		} else {
			report, err = a.orchestrator.Run(ctx)
		}
		if err != nil {
			return err
		}

		totals := report.Totals()
		fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d created=%d merged=%d review=%d skipped=%d errors=%d\n",
			totals.Fetched, totals.Created, totals.Merged, totals.ReviewNeeded, totals.Skipped, len(totals.Errors))
		for _, msg := range totals.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", msg)
		}
		return nil
	},
}

func runManualImport(cmd *cobra.Command, a *app, path string) (*pipeline.Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manual payload: %w", err)
	}

	payload, recordErrs, err := adapters.ParseManualPayload(raw)
	if err != nil {
		return nil, err
	}
	for _, recordErr := range recordErrs {
		fmt.Fprintf(cmd.ErrOrStderr(), "rejected: %s\n", recordErr.Error())
	}
	if len(payload.Events) == 0 {
		return nil, fmt.Errorf("no valid events in payload")
	}

	ctx := cmd.Context()
	sourceType := catalog.SourceType(payload.Source.Type)
	reliability := catalog.DefaultReliability(sourceType)
	if payload.Source.Reliability != nil {
		reliability = *payload.Source.Reliability
	}
	source, err := a.store.Sources().GetOrCreate(ctx, payload.Source.Name, sourceType, reliability)
	if err != nil {
		return nil, fmt.Errorf("register manual source: %w", err)
	}

	normalizer, err := newNormalizer(ctx, a.store)
	if err != nil {
		return nil, err
	}
	// Stage first so an interrupted import is finished by the hourly drain.
	adapter := adapters.NewManualAdapter(*source, payload.Events, normalizer)
	if _, err := a.orchestrator.Stage(ctx, adapter); err != nil {
		return nil, err
	}
	return a.orchestrator.ProcessPending(ctx)
}

// manualSheetCmd imports a spreadsheet export: a JSON array of row objects
// keyed by lowercase column header.
var manualSheetCmd = &cobra.Command{
	Use:   "import-sheet <source-name> <rows.json>",
	Short: "Import curator spreadsheet rows",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		raw, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read sheet rows: %w", err)
		}
		var rows []adapters.SheetRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			return fmt.Errorf("parse sheet rows: %w", err)
		}

		events, recordErrs := adapters.FromSheetRows(rows)
		for _, recordErr := range recordErrs {
			fmt.Fprintf(cmd.ErrOrStderr(), "rejected: %s\n", recordErr.Error())
		}
		if len(events) == 0 {
			return fmt.Errorf("no valid rows in sheet")
		}

		source, err := a.store.Sources().GetOrCreate(ctx, args[0], catalog.SourceManual, catalog.DefaultReliability(catalog.SourceManual))
		if err != nil {
			return fmt.Errorf("register sheet source: %w", err)
		}
		normalizer, err := newNormalizer(ctx, a.store)
		if err != nil {
			return err
		}

		if _, err := a.orchestrator.Stage(ctx, adapters.NewManualAdapter(*source, events, normalizer)); err != nil {
			return err
		}
		report, err := a.orchestrator.ProcessPending(ctx)
		if err != nil {
			return err
		}
		totals := report.Totals()
		fmt.Fprintf(cmd.OutOrStdout(), "imported=%d created=%d merged=%d review=%d errors=%d\n",
			totals.Fetched, totals.Created, totals.Merged, totals.ReviewNeeded, len(totals.Errors))
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&manualFile, "manual-file", "", "manual import payload (JSON)")
	ingestCmd.AddCommand(manualSheetCmd)
}
