package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-catalog-service/internal/repository"
	"github.com/helixir/paper-catalog-service/internal/snapshot"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Merge a JSON snapshot directory into the catalog",
	Long: `Import reads a snapshot written by export (files may be split into shards
such as paper_1.json) and upserts it table by table in dependency order,
resolving OpenAlex ids to the target database's ids. Rows whose references
cannot be resolved are skipped and counted. Importing the same snapshot twice
changes nothing, except that institutions without an OpenAlex id have no key
to match on and are inserted again each time.

With --from-s3 the newest snapshot folder in the configured bucket is
downloaded into the directory first.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().String("dir", "", "snapshot directory (default snapshot.dir)")
	importCmd.Flags().Bool("from-s3", false, "download the latest snapshot from S3 before importing")

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cmd, "import")
	if err != nil {
		return err
	}
	defer a.close()

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = a.cfg.Snapshot.Dir
	}

	if fromS3, _ := cmd.Flags().GetBool("from-s3"); fromS3 {
		if !a.cfg.S3.Enabled {
			return fmt.Errorf("--from-s3 needs s3.enabled")
		}
		shipper, err := a.shipper(ctx)
		if err != nil {
			return err
		}
		folder, err := shipper.DownloadLatest(ctx, dir)
		if err != nil {
			return fmt.Errorf("download snapshot: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "downloaded s3://%s/%s\n", a.cfg.S3.Bucket, folder)
	}

	lock, err := a.lock(ctx)
	if err != nil {
		return err
	}
	defer a.unlock(lock)

	importer := snapshot.NewImporter(
		repository.NewPgCatalogRepository(a.db),
		repository.NewPgSnapshotRepository(a.db),
		a.metrics,
		a.logger,
	)
	report, err := importer.Import(ctx, dir)
	if report != nil {
		printImportReport(cmd.OutOrStdout(), report)
	}
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return nil
}
