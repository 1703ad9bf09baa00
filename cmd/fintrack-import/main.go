package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"fintrack/internal/cli"
	applog "fintrack/internal/log"
	"fintrack/internal/services"

	"github.com/google/uuid"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()

	var (
		userFlag       = flag.String("user", "", "user id (UUID) owning the transactions")
		fileFlag       = flag.String("file", "", "CSV file to import, - for stdin")
		currencyFlag   = flag.String("currency", cfg.DefaultCurrency, "currency for rows without one")
		dateFormatFlag = flag.String("date-format", cfg.IngestDateFormat, "Go layout of the date column")
		autoCategorize = flag.Bool("auto-categorize", true, "categorize rows without a category label")
		skipDuplicates = flag.Bool("skip-duplicates", true, "skip rows already in the ledger")
		maxRows        = flag.Int("max-rows", cfg.IngestMaxRows, "maximum rows per batch")
	)
	flag.Parse()

	logger := cli.SetupLogger(cfg, applog.ComponentImport)

	userID, err := uuid.Parse(*userFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -user %q: %v\n", *userFlag, err)
		os.Exit(2)
	}
	if *fileFlag == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		os.Exit(2)
	}

	in, closeIn, err := openInput(*fileFlag)
	if err != nil {
		logger.Error("Failed to open input", "error", err, "file", *fileFlag)
		os.Exit(1)
	}
	defer closeIn()

	rows, err := readRows(in, *maxRows)
	if err != nil {
		logger.Error("Failed to read CSV", "error", err, "file", *fileFlag)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	res := cli.InitBackend(ctx, logger, cfg, false)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", "error", err)
		}
	}()

	start := time.Now()
	result, err := res.Backend.Ingestion.Ingest(ctx, userID, rows, services.ImportOptions{
		DefaultCurrency: *currencyFlag,
		DateFormat:      *dateFormatFlag,
		AutoCategorize:  *autoCategorize,
		SkipDuplicates:  *skipDuplicates,
		MaxRows:         *maxRows,
	})
	if err != nil {
		logger.Error("Import rejected", "error", err, applog.FieldUserID, userID)
		os.Exit(1)
	}

	fields := applog.NewFields().
		WithOperation(applog.OpIngest).
		WithUser(userID.String()).
		WithImportCounts(result.TotalRows, result.SuccessfulTransactions, result.FailedTransactions, result.SkippedDuplicates)
	fields[applog.FieldDuration] = time.Since(start).Milliseconds()
	logger.InfoContext(ctx, "Import finished", fields.ToSlice()...)

	printResult(os.Stdout, result)
	if result.FailedTransactions > 0 {
		os.Exit(3)
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func printResult(w io.Writer, r services.ImportResult) {
	fmt.Fprintf(w, "total rows:      %d\n", r.TotalRows)
	fmt.Fprintf(w, "imported:        %d\n", r.SuccessfulTransactions)
	fmt.Fprintf(w, "failed:          %d\n", r.FailedTransactions)
	fmt.Fprintf(w, "duplicates:      %d\n", r.SkippedDuplicates)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
