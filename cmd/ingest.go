package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datashop/datashop/internal/ingest"
	"github.com/datashop/datashop/internal/metrics"
	"github.com/datashop/datashop/internal/platform"
	"github.com/datashop/datashop/internal/ui"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [urls.yaml | url...]",
	Short: "Capture product URLs and store them",
	Long: `Capture every URL in order, pausing between remote fetches. Arguments are either
a single YAML file with a "urls:" list or the URLs themselves. A failed URL is reported
and the batch continues.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Duration("delay", 0, "Pause between remote fetches (default from $DATASHOP_FETCH_DELAY or 5s)")
	ingestCmd.Flags().String("format", "table", "Output format: json, table")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	urls, err := collectURLs(args)
	if err != nil {
		return err
	}
	if d, _ := cmd.Flags().GetDuration("delay"); d > 0 {
		cfg.FetchDelay = d
	}
	format, _ := cmd.Flags().GetString("format")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	runner, closeRunner, err := buildRunner(st, metrics.New())
	if err != nil {
		return err
	}
	defer closeRunner()

	spin := ui.NewSpinner()
	spin.Start(fmt.Sprintf("Capturing %d URLs...", len(urls)))
	report := runner.Run(platform.WithProgress(ctx, spin.Progress), urls)
	spin.Stop()

	switch format {
	case "table":
		printReport(report)
	default:
		if err := printJSON(report); err != nil {
			return err
		}
	}

	if report.Saved() == 0 && len(report.Outcomes) > 0 {
		return fmt.Errorf("no URL captured (%d failed)", report.Failed())
	}
	return nil
}

// collectURLs treats a lone .yaml/.yml argument as a URL list file.
func collectURLs(args []string) ([]string, error) {
	if len(args) == 1 && (strings.HasSuffix(args[0], ".yaml") || strings.HasSuffix(args[0], ".yml")) {
		return ingest.LoadURLs(args[0])
	}
	return args, nil
}
