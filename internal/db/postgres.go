// Package db opens the Postgres pool and applies the embedded schema
// migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"vetting/pkg/types"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	schemaName      = "vetting"
	applicationName = "vetting"

	// Headroom for HTTP handlers while every renewal worker holds a
	// connection.
	reservedConns = 4
)

// Connect builds a pool sized for the renewal workers plus request traffic
// and verifies the database is reachable.
func Connect(ctx context.Context, config *types.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	params := poolConfig.ConnConfig.RuntimeParams
	if _, ok := params["search_path"]; !ok {
		params["search_path"] = schemaName
	}
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = applicationName
	}

	minConns := int32(config.RenewalWorkers) + reservedConns
	if config.DatabaseMaxConns > 0 {
		poolConfig.MaxConns = int32(config.DatabaseMaxConns)
	}
	if poolConfig.MaxConns < minConns {
		poolConfig.MaxConns = minConns
	}
	poolConfig.MaxConnIdleTime = 15 * time.Minute
	poolConfig.MaxConnLifetime = 45 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s: %w", poolConfig.ConnConfig.Host, err)
	}

	return pool, nil
}
