// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package format renders resource payloads as compact text for model prompts.
// Output depends only on input, so identical catalogs give identical prompts.
package format

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"querydesk/cli/internal/bridge/model"
)

// Context block titles.
const (
	TitleSchema = "Database Schema"
	TitleTables = "Available Tables"
	TitleData   = "Data"
)

// NoTables is the table list text for an empty database.
const NoTables = "No tables found."

var errInvalidJSON = errors.New("payload is not valid JSON")

// Schema renders a full catalog payload {"table":{"schema":[...]},...}.
// A single-table payload {"schema":[...]} is rendered without a table name;
// use TableSchema when the name is known.
func Schema(raw string) (string, error) {
	if !gjson.Valid(raw) {
		return "", errInvalidJSON
	}
	doc := gjson.Parse(raw)
	if msg := doc.Get("error"); msg.Exists() && msg.Type == gjson.String {
		return "", errors.New(msg.String())
	}
	if doc.Get("schema").IsArray() {
		return TableSchema("", raw)
	}

	var lines []string
	var err error
	doc.ForEach(func(table, value gjson.Result) bool {
		cols := value.Get("schema")
		if !cols.IsArray() {
			err = fmt.Errorf("table %s: missing schema", table.String())
			return false
		}
		lines = appendTable(lines, table.String(), cols)
		return true
	})
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// TableSchema renders a single-table payload under the given name.
func TableSchema(name, raw string) (string, error) {
	if !gjson.Valid(raw) {
		return "", errInvalidJSON
	}
	doc := gjson.Parse(raw)
	if msg := doc.Get("error"); msg.Exists() {
		return "", errors.New(msg.String())
	}
	cols := doc.Get("schema")
	if !cols.IsArray() {
		return "", errors.New("missing schema")
	}
	return strings.Join(appendTable(nil, name, cols), "\n"), nil
}

func appendTable(lines []string, name string, cols gjson.Result) []string {
	if name != "" {
		lines = append(lines, "Table: "+name)
	}
	lines = append(lines, "Columns:")
	cols.ForEach(func(_, col gjson.Result) bool {
		lines = append(lines, columnLine(col))
		return true
	})
	return append(lines, "")
}

func columnLine(col gjson.Result) string {
	var b strings.Builder
	b.WriteString("  - ")
	b.WriteString(col.Get("column_name").String())
	b.WriteString(" (")
	b.WriteString(col.Get("data_type").String())
	if c := col.Get("constraint_type").String(); c != "" {
		b.WriteString(", ")
		b.WriteString(c)
	}
	if ft := col.Get("foreign_table").String(); ft != "" {
		b.WriteString(", foreign key -> ")
		b.WriteString(ft)
		b.WriteString(".")
		b.WriteString(col.Get("foreign_column").String())
	}
	b.WriteString(")")
	return b.String()
}

// TableList renders {"tables":[...]} as one sentence.
func TableList(raw string) (string, error) {
	if !gjson.Valid(raw) {
		return "", errInvalidJSON
	}
	var names []string
	for _, t := range gjson.Get(raw, "tables").Array() {
		names = append(names, t.String())
	}
	if len(names) == 0 {
		return NoTables, nil
	}
	return fmt.Sprintf("The following tables are available in the database: %s.", strings.Join(names, ", ")), nil
}

// ResourceList renders resources for the selection prompt.
func ResourceList(resources []model.Resource) string {
	lines := []string{"Here are the available data resources:"}
	for _, r := range resources {
		lines = append(lines, "- URI: "+r.URI)
		if r.Description != "" {
			lines = append(lines, "  Description: "+r.Description)
		}
	}
	return strings.Join(lines, "\n")
}

// Resource picks a rendering from the URI shape and returns the block title
// and text.
func Resource(uri, raw string) (title, text string, err error) {
	switch {
	case strings.HasSuffix(uri, "/tables/schemas"):
		text, err = Schema(raw)
		return TitleSchema, text, err
	case strings.HasSuffix(uri, "/schema"):
		text, err = TableSchema(tableFromURI(uri), raw)
		return TitleSchema, text, err
	case strings.Contains(uri, "/tables"):
		text, err = TableList(raw)
		return TitleTables, text, err
	}
	return TitleData, raw, nil
}

// tableFromURI extracts {name} from .../tables/{name}/schema.
func tableFromURI(uri string) string {
	rest := uri
	if i := strings.LastIndex(rest, "/tables/"); i >= 0 {
		rest = rest[i+len("/tables/"):]
	}
	rest = strings.TrimSuffix(rest, "/schema")
	if name, err := url.PathUnescape(rest); err == nil {
		return name
	}
	return rest
}
