package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-catalog-service/internal/repository"
	"github.com/helixir/paper-catalog-service/internal/snapshot"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the catalog to a JSON snapshot directory",
	Long: `Export dumps every catalog table to one JSON array per table, replacing
internal ids with OpenAlex ids so the snapshot can be imported into another
database. Abstracts and year citations are embedded in paper.json.

With --upload the directory is also copied to the configured S3 bucket under a
timestamped folder.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("dir", "", "snapshot directory (default snapshot.dir)")
	exportCmd.Flags().Bool("upload", false, "upload the snapshot to S3 after writing it")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cmd, "export")
	if err != nil {
		return err
	}
	defer a.close()

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = a.cfg.Snapshot.Dir
	}
	upload, _ := cmd.Flags().GetBool("upload")
	if upload && !a.cfg.S3.Enabled {
		return fmt.Errorf("--upload needs s3.enabled")
	}

	exporter := snapshot.NewExporter(repository.NewPgSnapshotRepository(a.db), a.metrics, a.logger)
	report, err := exporter.Export(ctx, dir)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	printExportReport(cmd.OutOrStdout(), report)

	if !upload {
		return nil
	}
	shipper, err := a.shipper(ctx)
	if err != nil {
		return err
	}
	folder, err := shipper.Upload(ctx, dir)
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "uploaded to s3://%s/%s\n", a.cfg.S3.Bucket, folder)
	return nil
}
