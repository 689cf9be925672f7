package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the category loop once",
	Long: `Ingest lists the level-1 OpenAlex concepts (or the configured categories),
fetches up to max-records works per category sorted by citations, keeps the top
works of each publication-year bucket and upserts them into the catalog.

A category whose listing fails is reported and skipped. Only one ingestion
process may run against a database at a time.`,
	RunE: runIngest,
}

var ingestWorkCmd = &cobra.Command{
	Use:   "ingest-work <work-id>",
	Short: "Fetch and store a single OpenAlex work",
	Long: `Ingest-work fetches one work by id (W123 or https://openalex.org/W123) and
writes it the same way the category loop does. The work's first level-1 concept
becomes its category.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestWork,
}

func init() {
	ingestCmd.Flags().StringSlice("category", nil, "concept id to ingest (repeatable); default is every level-1 concept")
	ingestCmd.Flags().Int("max-records", 0, "works fetched per category (overrides ingest.max_records)")
	ingestCmd.Flags().Int("per-bucket", 0, "works kept per year bucket (overrides ingest.per_bucket)")
	ingestCmd.Flags().Bool("enrich-authors", false, "fetch author profiles after each category (overrides ingest.enrich_authors)")

	ingestWorkCmd.Flags().Bool("enrich-authors", false, "fetch the work's author profiles (overrides ingest.enrich_authors)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(ingestWorkCmd)
}

// applyIngestFlags copies explicitly set flags over the loaded configuration.
func applyIngestFlags(cmd *cobra.Command, a *app) {
	flags := cmd.Flags()
	if flags.Changed("max-records") {
		a.cfg.Ingest.MaxRecords, _ = flags.GetInt("max-records")
	}
	if flags.Changed("per-bucket") {
		a.cfg.Ingest.PerBucket, _ = flags.GetInt("per-bucket")
	}
	if flags.Changed("enrich-authors") {
		a.cfg.Ingest.EnrichAuthors, _ = flags.GetBool("enrich-authors")
	}
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cmd, "ingest")
	if err != nil {
		return err
	}
	defer a.close()
	applyIngestFlags(cmd, a)

	lock, err := a.lock(ctx)
	if err != nil {
		return err
	}
	defer a.unlock(lock)

	pipeline, publisher, err := a.pipeline()
	if err != nil {
		return err
	}
	defer a.closePublisher(publisher)

	categories, _ := cmd.Flags().GetStringSlice("category")
	summary, runErr := pipeline.Run(ctx, ingest.RunOptions{
		Trigger:    domain.TriggerCLI,
		Categories: categories,
	})
	if summary != nil {
		printRunSummary(cmd.OutOrStdout(), summary)
	}
	if runErr != nil {
		return fmt.Errorf("ingest: %w", runErr)
	}
	if n := len(summary.FailedCategories); n > 0 {
		return fmt.Errorf("%d categor(ies) failed: %v", n, summary.FailedCategories)
	}
	return nil
}

func runIngestWork(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cmd, "ingest-work")
	if err != nil {
		return err
	}
	defer a.close()
	applyIngestFlags(cmd, a)

	lock, err := a.lock(ctx)
	if err != nil {
		return err
	}
	defer a.unlock(lock)

	pipeline, publisher, err := a.pipeline()
	if err != nil {
		return err
	}
	defer a.closePublisher(publisher)

	result, err := pipeline.IngestWork(ctx, args[0])
	if err != nil {
		return err
	}
	printWriteResult(cmd.OutOrStdout(), args[0], result)
	return nil
}
