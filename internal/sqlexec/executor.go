// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec is the only path from model-written SQL to the database.
// Statements pass a read-only gate first; accepted ones run in a READ ONLY
// transaction that is always rolled back, and their rows are normalized into
// JSON-safe values.
package sqlexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"querydesk/cli/internal/logging"
	"querydesk/cli/internal/observability"
)

// Querier is the subset of *pgxpool.Pool the executor needs.
type Querier interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var readOnly = pgx.TxOptions{AccessMode: pgx.ReadOnly}

// Executor runs gated statements.
type Executor struct {
	db      Querier
	timeout time.Duration
	maxRows int
	logger  *slog.Logger
}

// Options configures an Executor. Zero values disable the deadline and the row cap.
type Options struct {
	Timeout time.Duration
	MaxRows int
	Logger  *slog.Logger
}

// New creates an Executor over db.
func New(db Querier, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{db: db, timeout: opts.Timeout, maxRows: opts.MaxRows, logger: logger}
}

// Execute classifies sql and, when accepted, runs it. It never returns an
// error: refusals and database faults are outcomes.
func (e *Executor) Execute(ctx context.Context, sql string) Outcome {
	start := time.Now()
	if !Classify(sql) {
		observability.ObserveStatement("rejected", 0)
		observability.Logger(ctx, e.logger).Info("statement rejected", slog.String("sql", truncate(sql, 200)))
		return Rejected{Reason: RejectReason}
	}

	out := e.run(ctx, sql)
	elapsed := time.Since(start)
	log := observability.Logger(ctx, e.logger)
	switch o := out.(type) {
	case Selected:
		observability.ObserveStatement("selected", elapsed)
		log.Debug("statement executed",
			slog.Int("rows", o.RowCount()),
			slog.Bool("truncated", o.Truncated),
			slog.Duration("elapsed", elapsed))
	case Failed:
		observability.ObserveStatement("failed", elapsed)
		log.Info("statement failed", slog.String("error", o.Error), slog.Duration("elapsed", elapsed))
	}
	return out
}

func (e *Executor) run(ctx context.Context, sql string) Outcome {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	tx, err := e.db.BeginTx(ctx, readOnly)
	if err != nil {
		return failed(ctx, err)
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			e.logger.Debug("rollback failed", slog.String("error", err.Error()))
		}
	}()

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return failed(ctx, err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}

	sel := Selected{Rows: []Row{}}
	for rows.Next() {
		if e.maxRows > 0 && len(sel.Rows) >= e.maxRows {
			sel.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return failed(ctx, err)
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		sel.Rows = append(sel.Rows, NewRow(cols, vals))
	}
	if !sel.Truncated {
		if err := rows.Err(); err != nil {
			return failed(ctx, err)
		}
	}

	// A value the JSON encoder cannot represent would break the tool result.
	if _, err := json.Marshal(sel); err != nil {
		return Failed{Error: fmt.Sprintf("result not representable as JSON: %v", err)}
	}
	return sel
}

func failed(ctx context.Context, err error) Failed {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Failed{Error: TimeoutError}
	}
	return Failed{Error: logging.Mask(err.Error())}
}

// normalize converts driver values into JSON-friendly ones.
func normalize(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	case uuid.UUID:
		return x.String()
	case []byte:
		return fmt.Sprintf("\\x%x", x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Sprint(x)
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Sprint(x)
		}
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
