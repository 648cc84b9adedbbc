// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package catalog reads table and column metadata from PostgreSQL and
// composes it into an ordered catalog.
//
// Nothing is cached: every call reads the live system catalogs, so a schema
// change is visible to the very next question.
package catalog

import (
	"bytes"
	"encoding/json"
)

// Column describes one column of a table together with its key constraint.
// A column taking part in several constraints appears once per constraint.
type Column struct {
	Name           string  `json:"column_name"`
	DataType       string  `json:"data_type"`
	ConstraintType *string `json:"constraint_type"`
	ForeignTable   *string `json:"foreign_table"`
	ForeignColumn  *string `json:"foreign_column"`
}

// TableSchema is the ordered column list of one table.
type TableSchema []Column

// MarshalJSON encodes the schema as {"schema":[...]}, the resource payload shape.
func (s TableSchema) MarshalJSON() ([]byte, error) {
	cols := []Column(s)
	if cols == nil {
		cols = []Column{}
	}
	return json.Marshal(struct {
		Schema []Column `json:"schema"`
	}{cols})
}

// UnmarshalJSON accepts the {"schema":[...]} payload.
func (s *TableSchema) UnmarshalJSON(b []byte) error {
	var v struct {
		Schema []Column `json:"schema"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = v.Schema
	return nil
}

// Catalog maps table names to schemas and remembers insertion order.
type Catalog struct {
	names  []string
	tables map[string]TableSchema
}

// Set adds or replaces a table. New tables go to the end.
func (c *Catalog) Set(name string, schema TableSchema) {
	if c.tables == nil {
		c.tables = make(map[string]TableSchema)
	}
	if _, ok := c.tables[name]; !ok {
		c.names = append(c.names, name)
	}
	c.tables[name] = schema
}

// Tables returns table names in insertion order.
func (c *Catalog) Tables() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *Catalog) Len() int { return len(c.names) }

// MarshalJSON writes {"table":{"schema":[...]},...} in insertion order.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.tables[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Omission records a table left out of a full catalog.
type Omission struct {
	Table  string `json:"table"`
	Reason string `json:"reason"`
}

// FullCatalog is the result of reading every table. Tables whose schema could
// not be read are listed in Omitted instead of being dropped silently.
type FullCatalog struct {
	Tables  *Catalog
	Omitted []Omission
}

// Partial reports whether any table was omitted.
func (f FullCatalog) Partial() bool { return len(f.Omitted) > 0 }

// TableList is the payload of the table list resource.
type TableList struct {
	Tables []string `json:"tables"`
	Count  int      `json:"count"`
}

// NewTableList builds a TableList whose count always matches its length.
func NewTableList(names []string) TableList {
	if names == nil {
		names = []string{}
	}
	return TableList{Tables: names, Count: len(names)}
}
