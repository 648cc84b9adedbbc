// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"bytes"
	"encoding/json"

	qerrors "querydesk/cli/internal/errors"
)

// Outcome is the result of one execution attempt: exactly one of
// Selected, Rejected or Failed.
type Outcome interface {
	// Kind returns the error kind of a refused or failed outcome, "" on success.
	Kind() qerrors.Kind
	json.Marshaler
	outcome()
}

// Selected carries the rows of an accepted statement.
type Selected struct {
	Rows []Row
	// Truncated is set when the row cap cut the result short.
	Truncated bool
}

// RowCount is always len(Rows).
func (s Selected) RowCount() int { return len(s.Rows) }

func (Selected) Kind() qerrors.Kind { return "" }
func (Selected) outcome()           {}

func (s Selected) MarshalJSON() ([]byte, error) {
	rows := s.Rows
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(struct {
		Type      string `json:"type"`
		Rows      []Row  `json:"rows"`
		RowCount  int    `json:"row_count"`
		Truncated bool   `json:"truncated,omitempty"`
	}{"SELECT", rows, len(rows), s.Truncated})
}

// Rejected is returned for statements the gate refused; the database was not touched.
type Rejected struct {
	Reason string
}

func (Rejected) Kind() qerrors.Kind { return qerrors.Rejected }
func (Rejected) outcome()           {}

func (r Rejected) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string  `json:"type"`
		Status  *string `json:"status"`
		Message string  `json:"message"`
	}{"MODIFY", nil, r.Reason})
}

// Failed is returned when the database rejected or aborted an accepted statement.
type Failed struct {
	Error string
}

// TimeoutError is the Failed detail for statements that ran past their deadline.
const TimeoutError = "timeout"

func (Failed) Kind() qerrors.Kind { return qerrors.Failed }
func (Failed) outcome()           {}

func (f Failed) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}{"error", f.Error, "Query failed: " + f.Error})
}

// Row is one result row. Columns keep their select-list order in JSON.
type Row struct {
	cols []string
	vals []any
}

// NewRow builds a row; a repeated column name keeps its first position and
// its last value.
func NewRow(cols []string, vals []any) Row {
	r := Row{}
	for i, c := range cols {
		var v any
		if i < len(vals) {
			v = vals[i]
		}
		r.set(c, v)
	}
	return r
}

func (r *Row) set(col string, v any) {
	for i, c := range r.cols {
		if c == col {
			r.vals[i] = v
			return
		}
	}
	r.cols = append(r.cols, col)
	r.vals = append(r.vals, v)
}

// Get returns the value of a column.
func (r Row) Get(col string) (any, bool) {
	for i, c := range r.cols {
		if c == col {
			return r.vals[i], true
		}
	}
	return nil, false
}

// Columns returns column names in order.
func (r Row) Columns() []string { return append([]string(nil), r.cols...) }

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.vals[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
