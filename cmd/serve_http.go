package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datashop/datashop/internal/metrics"
	mcpserver "github.com/datashop/datashop/mcp"
)

var serveHTTPCmd = &cobra.Command{
	Use:   "serve-http",
	Short: "Start MCP HTTP server",
	Long:  "Start the MCP server over HTTP for remote access, with /healthz and Prometheus /metrics.",
	RunE:  runServeHTTP,
}

func init() {
	serveHTTPCmd.Flags().String("port", "", "HTTP port (default from $PORT or 8080)")
	rootCmd.AddCommand(serveHTTPCmd)
}

func runServeHTTP(cmd *cobra.Command, args []string) error {
	port := cfg.HTTPPort
	if p, _ := cmd.Flags().GetString("port"); p != "" {
		port = p
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	rec := metrics.New()
	runner, closeRunner, err := buildRunner(st, rec)
	if err != nil {
		return err
	}
	defer closeRunner()

	addr := fmt.Sprintf(":%s", port)
	deps := mcpserver.Deps{Query: buildQuery(st), Runner: runner}
	return mcpserver.ServeHTTP(ctx, addr, cfg.APIKey, deps, rec.Handler())
}
