// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	qerrors "querydesk/cli/internal/errors"
	"querydesk/cli/internal/observability"
)

// Querier is the subset of *pgxpool.Pool the catalog needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ErrTableNotFound is returned by TableSchema when the table has no columns.
var ErrTableNotFound = qerrors.New(qerrors.ResourceNotFound, "Table not found")

const listTablesSQL = `
	SELECT schemaname, tablename, tableowner
	FROM pg_catalog.pg_tables
	WHERE schemaname NOT IN ('information_schema', 'pg_catalog')
	ORDER BY schemaname, tablename`

const tableSchemaSQL = `
	SELECT
		c.column_name,
		c.data_type,
		tc.constraint_type,
		ccu.table_name AS foreign_table,
		ccu.column_name AS foreign_column
	FROM information_schema.columns c
	LEFT JOIN information_schema.key_column_usage kcu
		ON c.table_schema = kcu.table_schema
		AND c.table_name = kcu.table_name
		AND c.column_name = kcu.column_name
	LEFT JOIN information_schema.table_constraints tc
		ON kcu.constraint_name = tc.constraint_name
		AND kcu.constraint_schema = tc.constraint_schema
	LEFT JOIN information_schema.referential_constraints rc
		ON tc.constraint_name = rc.constraint_name
		AND tc.constraint_schema = rc.constraint_schema
	LEFT JOIN information_schema.constraint_column_usage ccu
		ON rc.unique_constraint_name = ccu.constraint_name
		AND rc.unique_constraint_schema = ccu.constraint_schema
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position, tc.constraint_type NULLS LAST`

// Inspector reads catalog metadata.
type Inspector struct {
	db      Querier
	timeout time.Duration
	logger  *slog.Logger
}

// NewInspector creates an Inspector. Each metadata query runs under timeout;
// zero disables the per-call deadline.
func NewInspector(db Querier, timeout time.Duration, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{db: db, timeout: timeout, logger: logger}
}

func (i *Inspector) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, i.timeout)
}

// tableRef identifies a table exactly as pg_tables reports it.
type tableRef struct {
	schema string
	table  string
}

// Name is the listed form of the table.
func (r tableRef) Name() string { return qualify(r.schema, r.table) }

// ListTables returns user tables ordered by schema then name. Tables outside
// the public schema are returned schema-qualified.
func (i *Inspector) ListTables(ctx context.Context) ([]string, error) {
	refs, err := i.listRefs(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name())
	}
	return names, nil
}

func (i *Inspector) listRefs(ctx context.Context) ([]tableRef, error) {
	ctx, cancel := i.withDeadline(ctx)
	defer cancel()

	rows, err := i.db.Query(ctx, listTablesSQL)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.CatalogUnavailable, "list tables", err)
	}
	defer rows.Close()

	var refs []tableRef
	for rows.Next() {
		var ref tableRef
		var owner string
		if err := rows.Scan(&ref.schema, &ref.table, &owner); err != nil {
			return nil, qerrors.Wrap(qerrors.CatalogUnavailable, "scan table row", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Wrap(qerrors.CatalogUnavailable, "list tables", err)
	}
	return refs, nil
}

// TableSchema returns the columns of one table. name may be "table" or
// "schema.table"; the default schema is public. A dotted name that is not
// found as schema.table is retried as a public table of that exact name.
func (i *Inspector) TableSchema(ctx context.Context, name string) (TableSchema, error) {
	for _, ref := range candidates(name) {
		cols, err := i.columns(ctx, ref, name)
		if errors.Is(err, ErrTableNotFound) {
			continue
		}
		return cols, err
	}
	return nil, ErrTableNotFound
}

func (i *Inspector) columns(ctx context.Context, ref tableRef, name string) (TableSchema, error) {
	ctx, cancel := i.withDeadline(ctx)
	defer cancel()

	rows, err := i.db.Query(ctx, tableSchemaSQL, ref.schema, ref.table)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.CatalogUnavailable, "read schema of "+name, err)
	}
	defer rows.Close()

	var cols TableSchema
	for rows.Next() {
		var col Column
		var constraint, ftable, fcol pgtype.Text
		if err := rows.Scan(&col.Name, &col.DataType, &constraint, &ftable, &fcol); err != nil {
			return nil, qerrors.Wrap(qerrors.CatalogUnavailable, "scan column of "+name, err)
		}
		col.ConstraintType = textPtr(constraint)
		col.ForeignTable = textPtr(ftable)
		col.ForeignColumn = textPtr(fcol)
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Wrap(qerrors.CatalogUnavailable, "read schema of "+name, err)
	}
	if len(cols) == 0 {
		return nil, ErrTableNotFound
	}
	return cols, nil
}

// FullCatalog lists tables and reads each schema. Failing to list is fatal;
// a table whose schema cannot be read is recorded in Omitted.
func (i *Inspector) FullCatalog(ctx context.Context) (FullCatalog, error) {
	refs, err := i.listRefs(ctx)
	if err != nil {
		return FullCatalog{}, err
	}

	full := FullCatalog{Tables: &Catalog{}}
	for _, ref := range refs {
		name := ref.Name()
		schema, err := i.columns(ctx, ref, name)
		if err != nil {
			if ctx.Err() != nil {
				return FullCatalog{}, qerrors.Wrap(qerrors.CatalogUnavailable, "build catalog", ctx.Err())
			}
			i.logger.Warn("table omitted from catalog", slog.String("table", name), slog.String("error", err.Error()))
			full.Omitted = append(full.Omitted, Omission{Table: name, Reason: err.Error()})
			continue
		}
		full.Tables.Set(name, schema)
	}
	observability.AddCatalogOmissions(len(full.Omitted))
	return full, nil
}

func qualify(schema, table string) string {
	if schema == "" || schema == "public" {
		return table
	}
	return schema + "." + table
}

// candidates lists the tables name may denote, most specific first.
func candidates(name string) []tableRef {
	public := tableRef{schema: "public", table: name}
	if s, t, ok := strings.Cut(name, "."); ok && s != "" && t != "" {
		return []tableRef{{schema: s, table: t}, public}
	}
	return []tableRef{public}
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
