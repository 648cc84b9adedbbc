// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions bounds the connection pool.
type PoolOptions struct {
	MinConns int32
	MaxConns int32
}

// PoolConfig builds a pgxpool configuration from a raw DSN, normalizing it first.
func PoolConfig(raw string, opts PoolOptions) (*pgxpool.Config, error) {
	normalized, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(normalized)
	if err != nil {
		return nil, err
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns >= 0 && opts.MinConns <= cfg.MaxConns {
		cfg.MinConns = opts.MinConns
	}
	return cfg, nil
}

// Open creates a pool and verifies it with a ping bounded by timeout.
func Open(ctx context.Context, raw string, opts PoolOptions, timeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := PoolConfig(raw, opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
