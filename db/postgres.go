package db

import (
	"context"
	"fmt"

	"marketlens/config"
	"marketlens/logger"
	"marketlens/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RowSource runs a read query and returns its rows keyed by column name
type RowSource interface {
	Query(ctx context.Context, query string, args ...interface{}) ([]types.Row, error)
}

type PostgresDB struct {
	pool   *pgxpool.Pool
	config *config.PostgresConfig
	log    *logger.Logger
}

// InitDB opens the connection pool and verifies it with a ping
func InitDB(ctx context.Context, cfg *config.PostgresConfig) (*PostgresDB, error) {
	log := logger.L()

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		log.Error("Failed to parse database config", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		poolConfig.MinConns = int32(cfg.MinConnections)
	}
	if d := cfg.GetMaxConnLifetime(); d > 0 {
		poolConfig.MaxConnLifetime = d
	}
	if d := cfg.GetMaxConnIdleTime(); d > 0 {
		poolConfig.MaxConnIdleTime = d
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Error("Failed to create database pool", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		log.Error("Failed to ping database", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Successfully connected to database", map[string]interface{}{
		"host":         poolConfig.ConnConfig.Host,
		"port":         poolConfig.ConnConfig.Port,
		"db":           poolConfig.ConnConfig.Database,
		"max_conns":    poolConfig.MaxConns,
		"min_conns":    poolConfig.MinConns,
		"max_lifetime": poolConfig.MaxConnLifetime.String(),
		"max_idletime": poolConfig.MaxConnIdleTime.String(),
	})

	return &PostgresDB{
		pool:   pool,
		config: cfg,
		log:    log,
	}, nil
}

// GetPool returns the connection pool
func (p *PostgresDB) GetPool() *pgxpool.Pool {
	return p.pool
}

// Close closes the database connection
func (p *PostgresDB) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping checks the database is reachable
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Query executes a read query and collects every row as a column map
func (p *PostgresDB) Query(ctx context.Context, query string, args ...interface{}) ([]types.Row, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to collect rows: %w", err)
	}

	out := make([]types.Row, len(maps))
	for i, m := range maps {
		out[i] = types.Row(m)
	}
	return out, nil
}
