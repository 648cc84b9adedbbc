// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querydesk/cli/internal/bridge/mcpclient"
	"querydesk/cli/internal/catalog"
	qerrors "querydesk/cli/internal/errors"
	"querydesk/cli/internal/sqlexec"
)

func strp(s string) *string { return &s }

type fakeCatalog struct {
	names   []string
	schemas map[string]catalog.TableSchema
	omitted []catalog.Omission
	listErr error
}

func (f *fakeCatalog) ListTables(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.names, nil
}

func (f *fakeCatalog) TableSchema(_ context.Context, name string) (catalog.TableSchema, error) {
	s, ok := f.schemas[name]
	if !ok {
		return nil, catalog.ErrTableNotFound
	}
	return s, nil
}

func (f *fakeCatalog) FullCatalog(ctx context.Context) (catalog.FullCatalog, error) {
	if f.listErr != nil {
		return catalog.FullCatalog{}, f.listErr
	}
	c := &catalog.Catalog{}
	for _, n := range f.names {
		if s, ok := f.schemas[n]; ok {
			c.Set(n, s)
		}
	}
	return catalog.FullCatalog{Tables: c, Omitted: f.omitted}, nil
}

type fakeGate struct {
	seen []string
}

func (g *fakeGate) Execute(_ context.Context, sql string) sqlexec.Outcome {
	g.seen = append(g.seen, sql)
	if !sqlexec.Classify(sql) {
		return sqlexec.Rejected{Reason: sqlexec.RejectReason}
	}
	return sqlexec.Selected{Rows: []sqlexec.Row{sqlexec.NewRow([]string{"n"}, []any{1})}}
}

func sampleCatalog() *fakeCatalog {
	return &fakeCatalog{
		names: []string{"orgs", "users"},
		schemas: map[string]catalog.TableSchema{
			"orgs": {{Name: "id", DataType: "integer", ConstraintType: strp("PRIMARY KEY")}},
			"users": {
				{Name: "id", DataType: "integer", ConstraintType: strp("PRIMARY KEY")},
				{Name: "org_id", DataType: "integer", ConstraintType: strp("FOREIGN KEY"), ForeignTable: strp("orgs"), ForeignColumn: strp("id")},
			},
		},
	}
}

func connect(t *testing.T, cat Catalog, gate Gate) *mcpclient.Client {
	t.Helper()
	ctx := context.Background()
	srv := New(cat, gate, "test", nil)
	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverT)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	c, err := mcpclient.Connect(ctx, clientT, "test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestListResourcesIncludesPerTableSchemas(t *testing.T) {
	c := connect(t, sampleCatalog(), &fakeGate{})

	res, err := c.ListResources(context.Background())
	require.NoError(t, err)
	var uris []string
	for _, r := range res {
		uris = append(uris, r.URI)
		assert.Equal(t, "application/json", r.MIMEType)
	}
	assert.Contains(t, uris, TablesURI)
	assert.Contains(t, uris, SchemasURI)
	assert.Contains(t, uris, "postgresql://tables/orgs/schema")
	assert.Contains(t, uris, "postgresql://tables/users/schema")
}

func TestListResourcesSurvivesCatalogFailure(t *testing.T) {
	c := connect(t, &fakeCatalog{listErr: errors.New("down")}, &fakeGate{})

	res, err := c.ListResources(context.Background())
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestReadTables(t *testing.T) {
	c := connect(t, sampleCatalog(), &fakeGate{})

	got, err := c.ReadResource(context.Background(), TablesURI)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tables":["orgs","users"],"count":2}`, got.Text)
}

func TestReadSchemas(t *testing.T) {
	c := connect(t, sampleCatalog(), &fakeGate{})

	got, err := c.ReadResource(context.Background(), SchemasURI)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"orgs": {"schema": [{"column_name":"id","data_type":"integer","constraint_type":"PRIMARY KEY","foreign_table":null,"foreign_column":null}]},
		"users": {"schema": [
			{"column_name":"id","data_type":"integer","constraint_type":"PRIMARY KEY","foreign_table":null,"foreign_column":null},
			{"column_name":"org_id","data_type":"integer","constraint_type":"FOREIGN KEY","foreign_table":"orgs","foreign_column":"id"}
		]}
	}`, got.Text)
	assert.Empty(t, got.Meta["omitted"])
}

func TestReadSchemasReportsOmissions(t *testing.T) {
	cat := sampleCatalog()
	cat.names = append(cat.names, "locked")
	cat.omitted = []catalog.Omission{{Table: "locked", Reason: "permission denied"}}
	c := connect(t, cat, &fakeGate{})

	got, err := c.ReadResource(context.Background(), SchemasURI)
	require.NoError(t, err)
	assert.NotContains(t, got.Text, "locked")
	require.NotNil(t, got.Meta["omitted"])
	assert.Contains(t, got.Meta["omitted"], map[string]any{"table": "locked", "reason": "permission denied"})
}

func TestReadTableSchema(t *testing.T) {
	c := connect(t, sampleCatalog(), &fakeGate{})

	got, err := c.ReadResource(context.Background(), TableSchemaURI("orgs"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"schema":[{"column_name":"id","data_type":"integer","constraint_type":"PRIMARY KEY","foreign_table":null,"foreign_column":null}]}`, got.Text)
}

func TestReadMissingTableSchema(t *testing.T) {
	c := connect(t, sampleCatalog(), &fakeGate{})

	got, err := c.ReadResource(context.Background(), TableSchemaURI("ghosts"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Table not found"}`, got.Text)
}

func TestReadUnknownResource(t *testing.T) {
	c := connect(t, sampleCatalog(), &fakeGate{})

	_, err := c.ReadResource(context.Background(), "postgresql://views")
	assert.True(t, qerrors.Is(err, qerrors.ResourceNotFound), "got %v", err)
}

func TestReadTablesCatalogFailure(t *testing.T) {
	c := connect(t, &fakeCatalog{listErr: errors.New("down")}, &fakeGate{})

	_, err := c.ReadResource(context.Background(), TablesURI)
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	c := connect(t, sampleCatalog(), &fakeGate{})

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, ExecuteSQLTool, tools[0].Name)
	assert.Contains(t, string(tools[0].InputSchema), `"sql"`)
}

func TestExecuteSQL(t *testing.T) {
	gate := &fakeGate{}
	c := connect(t, sampleCatalog(), gate)

	got, err := c.CallTool(context.Background(), ExecuteSQLTool, map[string]any{"sql": "SELECT 1 AS n"})
	require.NoError(t, err)
	assert.False(t, got.IsError)
	assert.JSONEq(t, `{"type":"SELECT","rows":[{"n":1}],"row_count":1}`, got.Text)
	assert.Equal(t, []string{"SELECT 1 AS n"}, gate.seen)
}

func TestExecuteSQLRejected(t *testing.T) {
	c := connect(t, sampleCatalog(), &fakeGate{})

	got, err := c.CallTool(context.Background(), ExecuteSQLTool, map[string]any{"sql": "DROP TABLE users"})
	require.NoError(t, err)
	assert.True(t, got.IsError)
	assert.JSONEq(t, `{"type":"MODIFY","status":null,"message":"Only SELECT queries are supported"}`, got.Text)
}

func TestExecuteSQLMissingArgument(t *testing.T) {
	gate := &fakeGate{}
	c := connect(t, sampleCatalog(), gate)

	got, err := c.CallTool(context.Background(), ExecuteSQLTool, map[string]any{})
	require.NoError(t, err)
	assert.True(t, got.IsError)
	assert.Empty(t, gate.seen)
}

func TestUnknownTool(t *testing.T) {
	gate := &fakeGate{}
	c := connect(t, sampleCatalog(), gate)

	got, err := c.CallTool(context.Background(), "drop_everything", map[string]any{"sql": "SELECT 1"})
	require.NoError(t, err)
	assert.True(t, got.IsError)
	assert.Contains(t, got.Text, `unknown tool \"drop_everything\"`)
	assert.Empty(t, gate.seen)
}

func TestTableSchemaURIRoundTrip(t *testing.T) {
	for _, name := range []string{"users", "analytics.events", "odd name"} {
		got, ok := tableFromURI(TableSchemaURI(name))
		assert.True(t, ok, name)
		assert.Equal(t, name, got)
	}
	_, ok := tableFromURI("postgresql://tables/schemas")
	assert.False(t, ok)
}
