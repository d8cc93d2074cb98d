package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/datashop/datashop/internal/ingest"
	"github.com/datashop/datashop/internal/query"
)

// Deps are the services the tools call into. Runner may be nil, in which case
// ingest_url is not offered.
type Deps struct {
	Query  *query.Service
	Runner *ingest.Runner
}

// NewServer builds the MCP server with all tools registered.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"datashop",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	registerTools(s, &tools{deps: deps})
	return s
}

// Serve starts the MCP stdio server with all tools registered.
func Serve(deps Deps) error {
	return server.ServeStdio(NewServer(deps))
}
