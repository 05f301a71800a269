// Package postgres keeps the ingestion ledger: which source keys have been
// indexed, under which record id, and with what outcome.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
)

// Client owns the connection pool shared by the ledger.
type Client struct {
	DB *sql.DB
}

// New opens a pool and verifies it with a ping bounded by ctx.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("pinging postgres %s: %w", cfg.Host, err), db.Close())
	}
	return &Client{DB: db}, nil
}

func (c *Client) Close() error { return c.DB.Close() }

func (c *Client) Ping(ctx context.Context) error { return c.DB.PingContext(ctx) }

// InTx runs fn inside one transaction. A failing fn rolls back and its
// error is returned joined with any rollback error.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ledger transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ledger transaction: %w", err)
	}
	return nil
}
