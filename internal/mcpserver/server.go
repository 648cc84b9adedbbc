// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package mcpserver exposes the schema catalog as MCP resources and the
// execution gate as the execute_sql tool.
//
// Resources:
//
//	postgresql://tables                     {"tables":[...],"count":n}
//	postgresql://tables/schemas             {"<table>":{"schema":[...]},...}
//	postgresql://tables/{table_name}/schema {"schema":[...]} or {"error":"Table not found"}
//
// Every read recomputes its content from the live database.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"querydesk/cli/internal/catalog"
	"querydesk/cli/internal/observability"
	"querydesk/cli/internal/sqlexec"
)

// Resource URIs and tool name.
const (
	TablesURI           = "postgresql://tables"
	SchemasURI          = "postgresql://tables/schemas"
	TableSchemaTemplate = "postgresql://tables/{table_name}/schema"
	ExecuteSQLTool      = "execute_sql"

	tablePrefix = "postgresql://tables/"
	tableSuffix = "/schema"
	mimeJSON    = "application/json"
)

// Catalog is the metadata source behind the resources.
type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	TableSchema(ctx context.Context, name string) (catalog.TableSchema, error)
	FullCatalog(ctx context.Context) (catalog.FullCatalog, error)
}

// Gate executes tool-submitted SQL.
type Gate interface {
	Execute(ctx context.Context, sql string) sqlexec.Outcome
}

// Server holds the MCP server and its collaborators.
type Server struct {
	cat    Catalog
	gate   Gate
	logger *slog.Logger
	mcp    *mcp.Server
}

// ExecuteSQLInput is the argument object of the execute_sql tool.
type ExecuteSQLInput struct {
	SQL string `json:"sql" jsonschema:"a single SQL SELECT statement to run against the database"`
}

// New builds the server and registers resources and tools.
func New(cat Catalog, gate Gate, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cat: cat, gate: gate, logger: logger}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "querydesk", Title: "PostgreSQL Server", Version: version}, &mcp.ServerOptions{
		Instructions: "Read postgresql://tables/schemas for the database structure, then answer questions with execute_sql.",
		Logger:       logger,
	})

	s.mcp.AddResource(&mcp.Resource{
		URI:         TablesURI,
		Name:        "All Database Tables",
		Description: "List all tables across the database",
		MIMEType:    mimeJSON,
	}, s.readTables)
	s.mcp.AddResource(&mcp.Resource{
		URI:         SchemasURI,
		Name:        "Table Schemas",
		Description: "Provides database table as key and its schema as the value of the key",
		MIMEType:    mimeJSON,
	}, s.readSchemas)
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: TableSchemaTemplate,
		Name:        "Table Schema",
		Description: "Provides detailed schema of a given database table {table_name}",
		MIMEType:    mimeJSON,
	}, s.readTableSchema)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ExecuteSQLTool,
		Title:       "Execute SQL",
		Description: "Tool for executing SQL queries at the database. Only SELECT statements are accepted.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.executeSQL)

	s.mcp.AddReceivingMiddleware(s.middleware)
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Run serves a single session over transport until it closes or ctx is done.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcp.Run(ctx, transport)
}

// Connect starts a session over transport without blocking.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}

// TableSchemaURI returns the schema resource URI of a table.
func TableSchemaURI(table string) string {
	return tablePrefix + url.PathEscape(table) + tableSuffix
}

// tableFromURI is the inverse of TableSchemaURI.
func tableFromURI(uri string) (string, bool) {
	if !strings.HasPrefix(uri, tablePrefix) || !strings.HasSuffix(uri, tableSuffix) {
		return "", false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(uri, tablePrefix), tableSuffix)
	name, err := url.PathUnescape(raw)
	if err != nil || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func (s *Server) readTables(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	names, err := s.cat.ListTables(ctx)
	observability.ObserveResourceRead("tables", err)
	if err != nil {
		return nil, err
	}
	return jsonResult(req.Params.URI, catalog.NewTableList(names))
}

func (s *Server) readSchemas(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	full, err := s.cat.FullCatalog(ctx)
	observability.ObserveResourceRead("schemas", err)
	if err != nil {
		return nil, err
	}
	res, err := jsonResult(req.Params.URI, full.Tables)
	if err != nil {
		return nil, err
	}
	if full.Partial() {
		res.Meta = mcp.Meta{"omitted": full.Omitted}
	}
	return res, nil
}

func (s *Server) readTableSchema(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	name, ok := tableFromURI(uri)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	schema, err := s.cat.TableSchema(ctx, name)
	observability.ObserveResourceRead("table_schema", err)
	if errors.Is(err, catalog.ErrTableNotFound) {
		return jsonResult(uri, map[string]string{"error": "Table not found"})
	}
	if err != nil {
		return nil, err
	}
	return jsonResult(uri, schema)
}

func (s *Server) executeSQL(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteSQLInput) (*mcp.CallToolResult, any, error) {
	out := s.gate.Execute(ctx, in.SQL)
	text, err := json.Marshal(out)
	if err != nil {
		return nil, nil, err
	}
	kind := out.Kind()
	outcome := "selected"
	if kind != "" {
		outcome = string(kind)
	}
	observability.ObserveToolCall(ExecuteSQLTool, outcome)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		IsError: kind != "",
	}, out, nil
}

// middleware answers unknown tool names with an error result and appends the
// per-table schema resources to resource listings.
func (s *Server) middleware(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		if call, ok := req.(*mcp.CallToolRequest); ok && call.Params != nil && call.Params.Name != ExecuteSQLTool {
			observability.ObserveToolCall(call.Params.Name, "unknown_tool")
			return unknownTool(call.Params.Name), nil
		}

		res, err := next(ctx, method, req)
		if err != nil {
			return res, err
		}
		if list, ok := res.(*mcp.ListResourcesResult); ok && list.NextCursor == "" {
			s.appendTableResources(ctx, list)
		}
		return res, nil
	}
}

func (s *Server) appendTableResources(ctx context.Context, list *mcp.ListResourcesResult) {
	names, err := s.cat.ListTables(ctx)
	if err != nil {
		s.logger.Warn("per-table resources not listed", slog.String("error", err.Error()))
		return
	}
	for _, name := range names {
		list.Resources = append(list.Resources, &mcp.Resource{
			URI:         TableSchemaURI(name),
			Name:        name + " schema",
			Description: fmt.Sprintf("Columns, key constraints and foreign keys of table %s", name),
			MIMEType:    mimeJSON,
		})
	}
}

func unknownTool(name string) *mcp.CallToolResult {
	msg := fmt.Sprintf("unknown tool %q", name)
	text, _ := json.Marshal(map[string]string{
		"type":    "error",
		"error":   msg,
		"message": "Tool call failed: " + msg,
	})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		IsError: true,
	}
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mimeJSON, Text: string(b)}},
	}, nil
}
