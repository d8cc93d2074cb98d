package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datashop/datashop/internal/metrics"
	mcpserver "github.com/datashop/datashop/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP stdio server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	runner, closeRunner, err := buildRunner(st, metrics.New())
	if err != nil {
		return err
	}
	defer closeRunner()

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting datashop MCP server on stdio...")

	if err := mcpserver.Serve(mcpserver.Deps{Query: buildQuery(st), Runner: runner}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
