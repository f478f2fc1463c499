package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cartloom/bulkimport/internal/catalog"
	"github.com/cartloom/bulkimport/internal/pipeline"
)

var (
	runType        string
	runProcess     bool
	runAllowErrors bool
)

var runCmd = &cobra.Command{
	Use:   "run <file.csv>",
	Short: "Validate (and optionally process) a CSV file without a server",
	Long: `run drives the import pipeline headlessly: the file is parsed and
validated against the backend, and per-row errors are reported. With
--process the valid rows are committed; by default this is refused while
any row is still invalid (override with --allow-errors to commit just the
valid subset).`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runType, "type", "t", "", "import type: products or users (required)")
	runCmd.Flags().BoolVar(&runProcess, "process", false, "commit valid rows after validation")
	runCmd.Flags().BoolVar(&runAllowErrors, "allow-errors", false, "with --process, commit the valid subset even if some rows are invalid")
	runCmd.MarkFlagRequired("type")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	typ, err := pipeline.ParseImportType(runType)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	rows, err := pipeline.Parse(data)
	if err != nil {
		return fmt.Errorf("%s (%s)", pipeline.FormatUserError(err), err)
	}
	fmt.Printf("Parsed %d data rows from %s\n", len(rows), args[0])

	client := catalog.New(cfg.Backend.URL,
		catalog.WithToken(cfg.Backend.Token),
		catalog.WithTimeout(cfg.Backend.Timeout),
	)

	ctx := cmd.Context()
	result, err := client.Validate(ctx, typ, rows)
	if err != nil {
		return err
	}

	fmt.Printf("Validation: %d valid, %d invalid of %d rows\n",
		result.ValidCount, result.ErrorCount, result.TotalRows)

	for _, er := range result.ErrorRows {
		fmt.Printf("  row %d: %s\n", er.RowNumber, strings.Join(er.Errors, "; "))
	}

	if !runProcess {
		if result.ErrorCount > 0 {
			return fmt.Errorf("%d rows failed validation", result.ErrorCount)
		}
		return nil
	}

	if result.ValidCount == 0 {
		return pipeline.ErrNoValidRows
	}
	if result.ErrorCount > 0 && !runAllowErrors {
		return fmt.Errorf("refusing to process with %d invalid rows (use --allow-errors to commit the valid subset)", result.ErrorCount)
	}

	proc, err := client.Process(ctx, typ, result.ValidRows)
	if err != nil {
		return err
	}

	fmt.Printf("Processed: %d created, %d failed\n", proc.SuccessCount, proc.FailedCount)
	for _, f := range proc.Failed {
		fmt.Printf("  row %d: %s\n", f.RowNumber, f.Error)
	}

	if proc.FailedCount > 0 {
		return fmt.Errorf("%d records failed to process", proc.FailedCount)
	}
	return nil
}
