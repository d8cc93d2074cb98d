package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datashop/datashop/internal/platform"
	"github.com/datashop/datashop/internal/query"
)

var productsCmd = &cobra.Command{
	Use:   "products [platform]",
	Short: "List captured product ids",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProducts,
}

var detailCmd = &cobra.Command{
	Use:   "detail <platform> <item_id>",
	Short: "Show the latest capture of a product",
	Args:  cobra.ExactArgs(2),
	RunE:  runDetail,
}

var historyCmd = &cobra.Command{
	Use:   "history <platform> <item_id>",
	Short: "Show the daily price history of a product",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistory,
}

var reviewsCmd = &cobra.Command{
	Use:   "reviews <platform> <item_id>",
	Short: "Show stored reviews of a product",
	Args:  cobra.ExactArgs(2),
	RunE:  runReviews,
}

func init() {
	for _, c := range []*cobra.Command{productsCmd, detailCmd, historyCmd, reviewsCmd} {
		c.Flags().String("format", "table", "Output format: json, table")
		rootCmd.AddCommand(c)
	}
}

// withQuery opens the store for the duration of fn.
func withQuery(fn func(ctx context.Context, svc *query.Service) error) error {
	ctx := context.Background()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close(ctx)
	return fn(ctx, buildQuery(st))
}

func parseTarget(args []string) (platform.Platform, string, error) {
	p, err := platform.Parse(args[0])
	if err != nil {
		return 0, "", err
	}
	return p, args[1], nil
}

func runProducts(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	return withQuery(func(ctx context.Context, svc *query.Service) error {
		if len(args) == 0 {
			all, err := svc.ListAll(ctx)
			if err != nil {
				return err
			}
			if format == "table" {
				for _, p := range platform.All() {
					printIDs(p, all[p])
				}
				return nil
			}
			return printJSON(all)
		}

		p, err := platform.Parse(args[0])
		if err != nil {
			return err
		}
		ids, err := svc.ListIDs(ctx, p)
		if err != nil {
			return err
		}
		if format == "table" {
			printIDs(p, ids)
			return nil
		}
		return printJSON(ids)
	})
}

func runDetail(cmd *cobra.Command, args []string) error {
	p, id, err := parseTarget(args)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	return withQuery(func(ctx context.Context, svc *query.Service) error {
		d, err := svc.GetDetail(ctx, p, id)
		if err != nil {
			return err
		}
		if format == "table" {
			printProduct(d.Product)
			return nil
		}
		return printJSON(d)
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	p, id, err := parseTarget(args)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	return withQuery(func(ctx context.Context, svc *query.Service) error {
		h, err := svc.GetPriceHistory(ctx, p, id)
		if err != nil {
			return err
		}
		if format == "table" {
			printHistory(h)
			return nil
		}
		return printJSON(h)
	})
}

func runReviews(cmd *cobra.Command, args []string) error {
	p, id, err := parseTarget(args)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	return withQuery(func(ctx context.Context, svc *query.Service) error {
		b, err := svc.GetReviews(ctx, p, id)
		if err != nil {
			return err
		}
		if format == "table" && !b.Found() {
			fmt.Printf("No reviews stored for %s item %s\n", p, id)
			return nil
		}
		return printJSON(b)
	})
}
