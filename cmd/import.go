package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datashop/datashop/internal/ingest"
	"github.com/datashop/datashop/internal/logger"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Load file-store captures into the configured store",
	Long:  "Read {dir}/{platform}/{item_id}_{date}.json captures and save each one into the store selected by --store.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	n, err := ingest.Import(ctx, args[0], st, buildCache(), logger.ForComponent("import"))
	if err != nil {
		return fmt.Errorf("import failed after %d captures: %w", n, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d captures into the %s store\n", n, cfg.Store)
	return nil
}
