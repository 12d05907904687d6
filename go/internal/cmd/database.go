package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/dbconfig"
)

// Databases holds both Postgres handles. Users and friends run on pgx; alerts and
// the outbox relay run on database/sql so they can share lib/pq with LISTEN/NOTIFY.
type Databases struct {
	Pool *pgxpool.Pool
	SQL  *sql.DB
	DSN  string
}

func setupDatabase(ctx context.Context, cfg dbconfig.Config) (*Databases, error) {
	dsn := cfg.DSN()

	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		database.Close()
		return nil, fmt.Errorf("failed to ping connection pool: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")

	return &Databases{Pool: pool, SQL: database, DSN: dsn}, nil
}

func (d *Databases) Close() {
	d.Pool.Close()
	if err := d.SQL.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
}
