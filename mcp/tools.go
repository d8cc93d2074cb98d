package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/platform"
)

type tools struct {
	deps Deps
}

func registerTools(s *server.MCPServer, t *tools) {
	platformArg := mcp.WithString("platform",
		mcp.Required(),
		mcp.Description("Marketplace: shopee, lazada or tiki"),
		mcp.Enum("shopee", "lazada", "tiki"),
	)
	idArg := mcp.WithString("item_id",
		mcp.Required(),
		mcp.Description("Marketplace item id"),
	)

	// list_products
	s.AddTool(mcp.NewTool("list_products",
		mcp.WithDescription("List the ids of every captured product, for one platform or all of them"),
		mcp.WithString("platform",
			mcp.Description("Marketplace: shopee, lazada or tiki (default: all)"),
		),
	), t.listProducts)

	// product_detail
	s.AddTool(mcp.NewTool("product_detail",
		mcp.WithDescription("Get the latest captured details of a product"),
		platformArg,
		idArg,
	), t.productDetail)

	// price_history
	s.AddTool(mcp.NewTool("price_history",
		mcp.WithDescription("Get the daily price history of a product with summary statistics"),
		platformArg,
		idArg,
	), t.priceHistory)

	// product_reviews
	s.AddTool(mcp.NewTool("product_reviews",
		mcp.WithDescription("Get stored reviews of a product"),
		platformArg,
		idArg,
	), t.productReviews)

	// ingest_url
	if t.deps.Runner != nil {
		s.AddTool(mcp.NewTool("ingest_url",
			mcp.WithDescription("Capture one or more product URLs from Shopee, Lazada or Tiki and store them"),
			mcp.WithString("url",
				mcp.Required(),
				mcp.Description("Product URL; several may be separated by newlines"),
			),
		), t.ingestURL)
	}
}

func (t *tools) listProducts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := request.GetString("platform", "")
	if name == "" {
		all, err := t.deps.Query.ListAll(ctx)
		if err != nil {
			return queryError("list error", err), nil
		}
		return jsonResult(all)
	}

	p, err := platform.Parse(name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("platform error: %v", err)), nil
	}
	ids, err := t.deps.Query.ListIDs(ctx, p)
	if err != nil {
		return queryError("list error", err), nil
	}
	return jsonResult(ids)
}

func (t *tools) productDetail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, id, res := platformAndID(request)
	if res != nil {
		return res, nil
	}
	detail, err := t.deps.Query.GetDetail(ctx, p, id)
	if err != nil {
		return queryError("detail error", err), nil
	}
	return jsonResult(detail)
}

func (t *tools) priceHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, id, res := platformAndID(request)
	if res != nil {
		return res, nil
	}
	history, err := t.deps.Query.GetPriceHistory(ctx, p, id)
	if err != nil {
		return queryError("history error", err), nil
	}
	return jsonResult(history)
}

func (t *tools) productReviews(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, id, res := platformAndID(request)
	if res != nil {
		return res, nil
	}
	bundle, err := t.deps.Query.GetReviews(ctx, p, id)
	if err != nil {
		return queryError("reviews error", err), nil
	}
	return jsonResult(bundle)
}

func (t *tools) ingestURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urls := strings.Fields(request.GetString("url", ""))
	if len(urls) == 0 {
		return mcp.NewToolResultError("url is required"), nil
	}

	report := t.deps.Runner.Run(ctx, urls)
	return jsonResult(report)
}

func platformAndID(request mcp.CallToolRequest) (platform.Platform, string, *mcp.CallToolResult) {
	p, err := platform.Parse(request.GetString("platform", ""))
	if err != nil {
		return 0, "", mcp.NewToolResultError(fmt.Sprintf("platform error: %v", err))
	}
	id := strings.TrimSpace(request.GetString("item_id", ""))
	if id == "" {
		return 0, "", mcp.NewToolResultError("item_id is required")
	}
	return p, id, nil
}

// queryError keeps "not found" apart from store faults in the text the client sees.
func queryError(prefix string, err error) *mcp.CallToolResult {
	if stderrors.Is(err, errors.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
