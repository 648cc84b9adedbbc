// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package bridge defines how the agent reaches the resource/tool server.
// The agent only sees the Bridge interface; the MCP client in mcpclient is the
// production implementation, either in-process or over a spawned server's stdio.
package bridge

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"querydesk/cli/internal/bridge/mcpclient"
	"querydesk/cli/internal/bridge/model"
)

// Bridge is the client side of the resource/tool protocol.
type Bridge interface {
	// ListResources returns static resources plus one schema resource per table.
	ListResources(ctx context.Context) ([]model.Resource, error)
	// ReadResource returns the content of uri. Unknown URIs fail with a
	// resource_not_found error.
	ReadResource(ctx context.Context, uri string) (model.ResourceContent, error)
	ListTools(ctx context.Context) ([]model.Tool, error)
	// CallTool invokes a tool. Tool-level failures, unknown tools included,
	// come back as a ToolResult with IsError set; the error return is reserved
	// for transport faults.
	CallTool(ctx context.Context, name string, args map[string]any) (model.ToolResult, error)
	Close() error
}

// Connect opens an MCP client session over transport.
func Connect(ctx context.Context, transport mcp.Transport, version string, logger *slog.Logger) (Bridge, error) {
	return mcpclient.Connect(ctx, transport, version, logger)
}
