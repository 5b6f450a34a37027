package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roadscan/speedcam/internal/report"
)

type reportOptions struct {
	DBPath    string
	RunID     string
	CSVPath   string
	ChartPath string
}

var reportOpts reportOptions

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "List and export runs recorded in the results database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(reportOpts)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOpts.DBPath, "db", "", "SQLite database written by process")
	reportCmd.Flags().StringVar(&reportOpts.RunID, "run", "", "Run to export (defaults to the most recent)")
	reportCmd.Flags().StringVar(&reportOpts.CSVPath, "csv", "", "Write the run's vehicle records to this CSV file")
	reportCmd.Flags().StringVar(&reportOpts.ChartPath, "chart", "", "Write the run's speed histogram HTML page to this file")

	reportCmd.MarkFlagRequired("db")
	rootCmd.AddCommand(reportCmd)
}

func runReport(opts reportOptions) error {
	store, err := report.Open(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return err
	}

	// Without export flags, list the stored runs, or show one run's
	// records when it was named.
	if opts.CSVPath == "" && opts.ChartPath == "" {
		if opts.RunID == "" {
			return listRuns(store)
		}
		return showRun(store, opts.RunID)
	}

	runID := opts.RunID
	if runID == "" {
		runID, err = store.LatestRunID()
		if err != nil {
			return err
		}
	}

	if opts.CSVPath != "" {
		records, err := store.Records(runID)
		if err != nil {
			return err
		}
		if err := writeCSVFile(opts.CSVPath, records); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %d records to %s\n", len(records), opts.CSVPath)
	}
	if opts.ChartPath != "" {
		speeds, err := store.SpeedsByClass(runID)
		if err != nil {
			return err
		}
		title := fmt.Sprintf("Speed distribution, run %s", shortID(runID))
		if err := writeChartFile(opts.ChartPath, title, speeds); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote speed chart to %s\n", opts.ChartPath)
	}
	return nil
}

func showRun(store *report.Store, runID string) error {
	records, err := store.Records(runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("no records for run %s\n", runID)
		return nil
	}
	printRecordTable(os.Stdout, records)
	printSpeedStats(os.Stderr, report.Summarize(records))
	return nil
}

func listRuns(store *report.Store) error {
	runs, err := store.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tRECORDED\tSOURCE\tVEHICLES\tOVER\tMEAN SPEED")
	for _, run := range runs {
		id := shortID(run.ID)
		if run.Cancelled {
			id += " (interrupted)"
		}
		mean := "-"
		if run.MeanSpeedKmh > 0 {
			mean = fmt.Sprintf("%.1f km/h", run.MeanSpeedKmh)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			id, run.CreatedAt.Format("2006-01-02 15:04"), run.Source,
			run.Vehicles, run.Overspeed, mean)
	}
	return tw.Flush()
}

// shortID abbreviates a run UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
