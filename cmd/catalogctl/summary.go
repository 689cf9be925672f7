package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/snapshot"
)

func printRunSummary(w io.Writer, s *domain.RunSummary) {
	fmt.Fprintf(w, "run %s (%s) finished in %s\n", s.RunID, s.Trigger, s.Duration().Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tNAME\tFETCHED\tSELECTED\tWRITTEN\tSKIPPED\tERROR")
	for _, c := range s.Categories {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			c.AlexCategoryID, c.Name, c.Fetched, c.Selected, c.Written, c.Skipped, c.Error)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "written %d, skipped %d\n", s.Written, s.Skipped)
	if len(s.SkipReasons) > 0 {
		fmt.Fprintf(w, "skip reasons: %s\n", formatCounts(s.SkipReasons))
	}
	printTally(w, s.Rows)
	if s.Error != "" {
		fmt.Fprintf(w, "error: %s\n", s.Error)
	}
}

func printWriteResult(w io.Writer, id string, r domain.WriteResult) {
	state := "updated"
	if r.PaperCreated {
		state = "created"
	}
	fmt.Fprintf(w, "work %s %s as paper %d with %d author(s)\n", id, state, r.PaperID, len(r.Authors))
	printTally(w, r.Rows)
}

func printTally(w io.Writer, t domain.Tally) {
	if len(t) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tCREATED\tUPDATED")
	for _, table := range slices.Sorted(maps.Keys(t)) {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", table, t[table].Created, t[table].Updated)
	}
	_ = tw.Flush()
}

func printExportReport(w io.Writer, r *snapshot.ExportReport) {
	fmt.Fprintf(w, "exported to %s at %s\n", r.Dir, r.ExportedAt.Format(time.RFC3339))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tROWS")
	for _, stem := range slices.Sorted(maps.Keys(r.Rows)) {
		fmt.Fprintf(tw, "%s.json\t%d\n", stem, r.Rows[stem])
	}
	_ = tw.Flush()
	if len(r.Missing) > 0 {
		fmt.Fprintf(w, "missing source tables (exported empty): %s\n", strings.Join(r.Missing, ", "))
	}
	if r.Dropped > 0 {
		fmt.Fprintf(w, "dropped %d row(s) with dangling references\n", r.Dropped)
	}
}

func printImportReport(w io.Writer, r *snapshot.ImportReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tREAD\tCREATED\tUPDATED\tSKIPPED\tREASONS")
	for _, t := range r.Tables {
		reasons := formatCounts(t.Reasons)
		if t.Missing {
			reasons = "target table missing"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			t.Table, t.Read, t.Counts.Created, t.Counts.Updated, t.Skipped, reasons)
	}
	_ = tw.Flush()

	created, updated, skipped := r.Totals()
	fmt.Fprintf(w, "imported %s in %s: %d created, %d updated, %d skipped\n",
		r.Dir, r.Duration.Round(time.Millisecond), created, updated, skipped)
}

// formatCounts renders counts as "a=1 b=2" in key order.
func formatCounts(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
