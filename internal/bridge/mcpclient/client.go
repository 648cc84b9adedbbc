// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package mcpclient implements the agent's bridge on an MCP client session.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"querydesk/cli/internal/bridge/model"
	qerrors "querydesk/cli/internal/errors"
)

// Client wraps an MCP client session.
type Client struct {
	session *mcp.ClientSession
	logger  *slog.Logger
}

// Connect performs the MCP handshake over transport.
func Connect(ctx context.Context, transport mcp.Transport, version string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "querydesk-agent", Version: version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ProtocolError, "connect to resource server", err)
	}
	return &Client{session: session, logger: logger}, nil
}

func (c *Client) ListResources(ctx context.Context) ([]model.Resource, error) {
	var out []model.Resource
	for r, err := range c.session.Resources(ctx, nil) {
		if err != nil {
			return nil, qerrors.Wrap(qerrors.ProtocolError, "list resources", err)
		}
		out = append(out, model.Resource{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MIMEType:    r.MIMEType,
		})
	}
	return out, nil
}

func (c *Client) ReadResource(ctx context.Context, uri string) (model.ResourceContent, error) {
	res, err := c.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		var werr *jsonrpc.Error
		if errors.As(err, &werr) && werr.Code == mcp.CodeResourceNotFound {
			return model.ResourceContent{}, qerrors.Wrap(qerrors.ResourceNotFound, uri, err)
		}
		return model.ResourceContent{}, qerrors.Wrap(qerrors.ProtocolError, "read "+uri, err)
	}
	if len(res.Contents) == 0 {
		return model.ResourceContent{}, qerrors.New(qerrors.ProtocolError, "empty content for "+uri)
	}
	first := res.Contents[0]
	return model.ResourceContent{URI: first.URI, MIMEType: first.MIMEType, Text: first.Text, Meta: res.Meta}, nil
}

func (c *Client) ListTools(ctx context.Context) ([]model.Tool, error) {
	var out []model.Tool
	for t, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, qerrors.Wrap(qerrors.ProtocolError, "list tools", err)
		}
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, qerrors.Wrap(qerrors.ProtocolError, "tool "+t.Name+" input schema", err)
		}
		out = append(out, model.Tool{
			Name:        t.Name,
			Title:       t.Title,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return out, nil
}

func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (model.ToolResult, error) {
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		if ctx.Err() != nil {
			return model.ToolResult{}, ctx.Err()
		}
		// An error response from the server (bad arguments, unknown tool) is
		// the model's mistake and goes back to it as an error result.
		var werr *jsonrpc.Error
		if errors.As(err, &werr) {
			c.logger.Debug("tool call refused by server",
				slog.String("tool", name), slog.Int64("code", werr.Code), slog.String("error", werr.Message))
			return errorResult(werr.Message), nil
		}
		return model.ToolResult{}, qerrors.Wrap(qerrors.ProtocolError, "call tool "+name, err)
	}
	return model.ToolResult{Text: firstText(res.Content), IsError: res.IsError}, nil
}

func (c *Client) Close() error {
	return c.session.Close()
}

func firstText(content []mcp.Content) string {
	for _, item := range content {
		if tc, ok := item.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func errorResult(msg string) model.ToolResult {
	b, _ := json.Marshal(map[string]string{
		"type":    "error",
		"error":   msg,
		"message": fmt.Sprintf("Tool call failed: %s", msg),
	})
	return model.ToolResult{Text: string(b), IsError: true}
}
