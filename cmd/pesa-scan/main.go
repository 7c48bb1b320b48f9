// Command pesa-scan ingests the configured SMS inbox once and prints the
// onboarding insights for the scanned ledger.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"pesa/internal/cli"
	"pesa/internal/core"
	"pesa/internal/log"
)

func main() {
	months := flag.Int("months", 0, "lookback window in months (default LOOKBACK_MONTHS)")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	app := cli.MustNewApp(ctx, cfg)
	defer app.Close()

	res, err := app.Ledger.Scan(ctx, *months)
	if err != nil {
		logger.Error("Scan failed", log.FieldOperation, log.OpScan, log.FieldError, err)
		os.Exit(1)
	}
	insights, err := app.Ledger.Insights(ctx)
	if err != nil {
		logger.Error("Failed to build insights", log.FieldError, err)
		os.Exit(1)
	}

	fmt.Printf("Scanned %s to %s: %d inserted, %d updated, %d skipped, %d rejected\n",
		res.Since.Format("2006-01-02"), res.Until.Format("2006-01-02"),
		res.Inserted, res.Updated, res.Skipped, res.Rejected)
	printInsights(os.Stdout, insights)
}

func printInsights(out io.Writer, in core.OnboardingInsights) {
	fmt.Fprintf(out, "\n%d transactions in ledger\n", in.TotalTransactions)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if len(in.FrequentMerchants) > 0 {
		fmt.Fprintln(tw, "\nMERCHANT\tCOUNT\tTOTAL\tCATEGORY")
		for _, m := range in.FrequentMerchants {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", m.Merchant, m.Count, m.TotalAmount, m.SuggestedCategory)
		}
	}
	if len(in.RecurringPaybills) > 0 {
		fmt.Fprintln(tw, "\nPAYBILL\tNAME\tTIMES\tAVERAGE\tCATEGORY")
		for _, p := range in.RecurringPaybills {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", p.PaybillNumber, p.MerchantName, p.Frequency, p.AverageAmount, p.SuggestedCategory)
		}
	}
	if len(in.CategorySuggestions) > 0 {
		fmt.Fprintln(tw, "\nCATEGORY\tCOUNT\tTOTAL")
		for _, s := range in.CategorySuggestions {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Category, s.Count, s.TotalAmount)
		}
	}
	_ = tw.Flush()
}
