// audit inspects and migrates the ignition audit log.
//
// Usage:
//
//	audit tail [-n 20] [--backend csv|sqlite] [--path <file>] [--markdown]
//	audit migrate --csv <file> --db <file>
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"ignitiongate/internal/config"
	"ignitiongate/internal/model"
	"ignitiongate/internal/repository"
	"ignitiongate/internal/repository/csvfile"
	"ignitiongate/internal/repository/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and migrate the ignition audit log",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

var tailFlags struct {
	count    int
	backend  string
	path     string
	markdown bool
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the most recent audit records",
	RunE:  runTail,
}

var migrateFlags struct {
	csvPath string
	dbPath  string
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy a CSV audit log into a SQLite audit database",
	RunE:  runMigrate,
}

func init() {
	f := tailCmd.Flags()
	f.IntVarP(&tailFlags.count, "count", "n", 20, "Number of records to show")
	f.StringVar(&tailFlags.backend, "backend", config.AuditBackendCSV, "Audit backend (csv or sqlite)")
	f.StringVar(&tailFlags.path, "path", "detection_logs.csv", "Audit file path")
	f.BoolVar(&tailFlags.markdown, "markdown", false, "Render as a Markdown table")

	m := migrateCmd.Flags()
	m.StringVar(&migrateFlags.csvPath, "csv", "detection_logs.csv", "Source CSV audit log")
	m.StringVar(&migrateFlags.dbPath, "db", "data/audit.db", "Destination SQLite database")

	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(migrateCmd)
}

func openRepository(backend, path string) (repository.AuditRepository, error) {
	switch backend {
	case config.AuditBackendCSV:
		return csvfile.New(path)
	case config.AuditBackendSQLite:
		return sqlite.Open(path)
	}
	return nil, &model.ConfigurationError{Key: "backend", Value: backend, Reason: "expected csv or sqlite"}
}

func runTail(cmd *cobra.Command, _ []string) error {
	repo, err := openRepository(tailFlags.backend, tailFlags.path)
	if err != nil {
		return err
	}
	defer repo.Close()

	records, err := repo.Recent(tailFlags.count)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	total, err := repo.Count()
	if err != nil {
		return fmt.Errorf("count audit log: %w", err)
	}

	renderRecords(cmd.OutOrStdout(), records, total, tailFlags.markdown)
	return nil
}

// renderRecords prints records as a table with a footer carrying the totals.
func renderRecords(out io.Writer, records []model.AuditRecord, total int, markdown bool) {
	w := table.NewWriter()
	w.SetOutputMirror(out)
	w.SetStyle(table.StyleLight)

	header := make(table.Row, len(model.AuditColumns))
	for i, c := range model.AuditColumns {
		header[i] = c
	}
	w.AppendHeader(header)

	allowed := 0
	for _, rec := range records {
		row := rec.Row()
		w.AppendRow(table.Row{row[0], row[1], row[2], row[3], row[4]})
		if rec.IgnitionOn {
			allowed++
		}
	}
	w.AppendFooter(table.Row{fmt.Sprintf("%d of %d", len(records), total), "", "", fmt.Sprintf("%d ON", allowed), ""})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
	})

	if markdown {
		w.RenderMarkdown()
		return
	}
	w.Render()
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	src, err := csvfile.New(migrateFlags.csvPath)
	if err != nil {
		return err
	}
	defer src.Close()

	n, err := src.Count()
	if err != nil {
		return fmt.Errorf("count source: %w", err)
	}
	out := cmd.OutOrStdout()
	if n == 0 {
		fmt.Fprintln(out, "No audit records to migrate")
		return nil
	}
	records, err := src.Recent(n)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	dst, err := sqlite.Open(migrateFlags.dbPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	before, err := dst.Count()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrating %d records from %s to %s\n", len(records), migrateFlags.csvPath, migrateFlags.dbPath)
	if err := dst.AppendBatch(records); err != nil {
		return fmt.Errorf("insert records: %w", err)
	}
	after, err := dst.Count()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Done: database now holds %d records (%d added)\n", after, after-before)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
