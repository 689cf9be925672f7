// Package observability provides logging and metrics support for the paper
// catalog service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger.Info().Str("component", "ingest").Msg("run started")
//
// Ingestion code tags its loggers with run and category fields:
//
//	ctx = observability.WithRun(ctx, runID, "cron")
//	ctx = observability.WithCategory(ctx, "C41008148")
//	log := observability.LoggerFromContext(ctx, logger)
//
// # Metrics
//
//	metrics := observability.NewMetrics("paper_catalog")
//	metrics.RecordRowWritten("paper", inserted)
//
// # Standard Fields
//
//   - component: the package emitting the entry (ingest, snapshot, openalex, ...)
//   - run_id: ingestion run identifier
//   - category_id: OpenAlex level-1 concept id being ingested
//   - alex_paper_id: OpenAlex work id
//   - table: catalog table touched by export or import
package observability
