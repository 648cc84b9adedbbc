// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "querydesk/cli/internal/errors"
)

var schemaCols = []string{"column_name", "data_type", "constraint_type", "foreign_table", "foreign_column"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestListTables(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM pg_catalog.pg_tables").
		WillReturnRows(pgxmock.NewRows([]string{"schemaname", "tablename", "tableowner"}).
			AddRow("analytics", "events", "app").
			AddRow("public", "orgs", "app").
			AddRow("public", "users", "app"))

	names, err := NewInspector(mock, time.Second, nil).ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"analytics.events", "orgs", "users"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTablesEmpty(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM pg_catalog.pg_tables").
		WillReturnRows(pgxmock.NewRows([]string{"schemaname", "tablename", "tableowner"}))

	names, err := NewInspector(mock, time.Second, nil).ListTables(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestListTablesFailureIsCatalogUnavailable(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM pg_catalog.pg_tables").WillReturnError(errors.New("connection reset"))

	_, err := NewInspector(mock, time.Second, nil).ListTables(context.Background())
	assert.True(t, qerrors.Is(err, qerrors.CatalogUnavailable), "got %v", err)
}

func TestTableSchema(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("public", "users").
		WillReturnRows(pgxmock.NewRows(schemaCols).
			AddRow("id", "integer", "PRIMARY KEY", nil, nil).
			AddRow("email", "text", nil, nil, nil).
			AddRow("org_id", "integer", "FOREIGN KEY", "orgs", "id"))

	schema, err := NewInspector(mock, time.Second, nil).TableSchema(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, schema, 3)

	assert.Equal(t, "id", schema[0].Name)
	require.NotNil(t, schema[0].ConstraintType)
	assert.Equal(t, "PRIMARY KEY", *schema[0].ConstraintType)
	assert.Nil(t, schema[0].ForeignTable)

	assert.Nil(t, schema[1].ConstraintType)

	require.NotNil(t, schema[2].ForeignTable)
	assert.Equal(t, "orgs", *schema[2].ForeignTable)
	assert.Equal(t, "id", *schema[2].ForeignColumn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableSchemaQualifiedName(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("analytics", "events").
		WillReturnRows(pgxmock.NewRows(schemaCols).AddRow("id", "bigint", nil, nil, nil))

	_, err := NewInspector(mock, time.Second, nil).TableSchema(context.Background(), "analytics.events")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableSchemaNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("public", "ghost_table").
		WillReturnRows(pgxmock.NewRows(schemaCols))

	_, err := NewInspector(mock, time.Second, nil).TableSchema(context.Background(), "ghost_table")
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.Equal(t, qerrors.ResourceNotFound, qerrors.KindOf(err))
}

func TestFullCatalogRecordsOmissions(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM pg_catalog.pg_tables").
		WillReturnRows(pgxmock.NewRows([]string{"schemaname", "tablename", "tableowner"}).
			AddRow("public", "users", "app").
			AddRow("public", "broken", "app").
			AddRow("public", "orgs", "app"))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("public", "users").
		WillReturnRows(pgxmock.NewRows(schemaCols).AddRow("id", "integer", "PRIMARY KEY", nil, nil))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("public", "broken").
		WillReturnError(errors.New("permission denied for table broken"))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("public", "orgs").
		WillReturnRows(pgxmock.NewRows(schemaCols).AddRow("id", "integer", "PRIMARY KEY", nil, nil))

	full, err := NewInspector(mock, time.Second, nil).FullCatalog(context.Background())
	require.NoError(t, err)
	assert.True(t, full.Partial())
	assert.Equal(t, []string{"users", "orgs"}, full.Tables.Tables())
	require.Len(t, full.Omitted, 1)
	assert.Equal(t, "broken", full.Omitted[0].Table)
	assert.Contains(t, full.Omitted[0].Reason, "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFullCatalogKeepsDottedPublicTableIntact(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM pg_catalog.pg_tables").
		WillReturnRows(pgxmock.NewRows([]string{"schemaname", "tablename", "tableowner"}).
			AddRow("analytics", "events", "app").
			AddRow("public", "orders.2024", "app"))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("analytics", "events").
		WillReturnRows(pgxmock.NewRows(schemaCols).AddRow("id", "bigint", nil, nil, nil))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("public", "orders.2024").
		WillReturnRows(pgxmock.NewRows(schemaCols).AddRow("id", "integer", "PRIMARY KEY", nil, nil))

	full, err := NewInspector(mock, time.Second, nil).FullCatalog(context.Background())
	require.NoError(t, err)
	assert.False(t, full.Partial(), "omitted: %v", full.Omitted)
	assert.Equal(t, []string{"analytics.events", "orders.2024"}, full.Tables.Tables())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableSchemaDottedPublicTable(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("orders", "2024").
		WillReturnRows(pgxmock.NewRows(schemaCols))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("public", "orders.2024").
		WillReturnRows(pgxmock.NewRows(schemaCols).AddRow("id", "integer", "PRIMARY KEY", nil, nil))

	schema, err := NewInspector(mock, time.Second, nil).TableSchema(context.Background(), "orders.2024")
	require.NoError(t, err)
	require.Len(t, schema, 1)
	assert.Equal(t, "id", schema[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableSchemaDottedNameNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("ghost", "table").
		WillReturnRows(pgxmock.NewRows(schemaCols))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("public", "ghost.table").
		WillReturnRows(pgxmock.NewRows(schemaCols))

	_, err := NewInspector(mock, time.Second, nil).TableSchema(context.Background(), "ghost.table")
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFullCatalogListFailureIsFatal(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM pg_catalog.pg_tables").WillReturnError(errors.New("no connection"))

	_, err := NewInspector(mock, time.Second, nil).FullCatalog(context.Background())
	assert.True(t, qerrors.Is(err, qerrors.CatalogUnavailable))
}

func TestCatalogJSONKeepsInsertionOrder(t *testing.T) {
	pk := "PRIMARY KEY"
	c := &Catalog{}
	c.Set("zebra", TableSchema{{Name: "id", DataType: "integer", ConstraintType: &pk}})
	c.Set("apple", TableSchema{{Name: "name", DataType: "text"}})
	c.Set("zebra", TableSchema{{Name: "id", DataType: "bigint", ConstraintType: &pk}})

	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t,
		`{"zebra":{"schema":[{"column_name":"id","data_type":"bigint","constraint_type":"PRIMARY KEY","foreign_table":null,"foreign_column":null}]},`+
			`"apple":{"schema":[{"column_name":"name","data_type":"text","constraint_type":null,"foreign_table":null,"foreign_column":null}]}}`,
		string(b))
	assert.Equal(t, 2, c.Len())
}

func TestEmptyCatalogJSON(t *testing.T) {
	b, err := json.Marshal(&Catalog{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))

	b, err = json.Marshal(TableSchema(nil))
	require.NoError(t, err)
	assert.Equal(t, `{"schema":[]}`, string(b))
}

func TestNewTableList(t *testing.T) {
	b, err := json.Marshal(NewTableList(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"tables":[],"count":0}`, string(b))

	l := NewTableList([]string{"a", "b"})
	assert.Equal(t, 2, l.Count)
}
