package db

import (
	"context"
	"fmt"
	"log"
	"os"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens the Postgres pool and makes sure the auction schema exists.
// DATABASE_URL wins; otherwise the DSN is assembled from DB_* variables.
func Connect(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_NAME"),
		)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	// NUMERIC columns scan straight into shopspring decimals.
	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Println("Connected to Postgres successfully")

	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// ensureSchema creates the tables and indexes if they are missing. Idempotent
// so restarts and multiple local runs are safe.
func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL DEFAULT 'bidder' CHECK (role IN ('bidder','seller','admin')),
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS batches (
			id UUID PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			week_number INTEGER NOT NULL,
			year INTEGER NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('SUBMISSION','REVIEW','LIVE','ENDED','SETTLED')),
			submission_start TIMESTAMPTZ NOT NULL,
			submission_end TIMESTAMPTZ NOT NULL,
			review_start TIMESTAMPTZ NOT NULL,
			review_end TIMESTAMPTZ NOT NULL,
			auction_start TIMESTAMPTZ NOT NULL,
			auction_end TIMESTAMPTZ NOT NULL,
			total_submitted INTEGER NOT NULL DEFAULT 0,
			total_approved INTEGER NOT NULL DEFAULT 0,
			total_rejected INTEGER NOT NULL DEFAULT 0,
			total_sold INTEGER NOT NULL DEFAULT 0,
			total_revenue NUMERIC(12,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_week ON batches(week_number, year, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS items (
			id UUID PRIMARY KEY,
			batch_id UUID NOT NULL REFERENCES batches(id),
			seller_id UUID NOT NULL REFERENCES users(id),
			reviewed_by UUID NULL REFERENCES users(id),
			winner_id UUID NULL REFERENCES users(id),
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT 'OTHER',
			image_urls TEXT NOT NULL DEFAULT '',
			starting_price NUMERIC(10,2) NOT NULL,
			reserve_price NUMERIC(10,2) NULL,
			current_bid NUMERIC(10,2) NULL,
			bid_increment NUMERIC(10,2) NOT NULL DEFAULT 10.00,
			status TEXT NOT NULL,
			rejection_reason TEXT NULL,
			admin_note TEXT NULL,
			total_bids INTEGER NOT NULL DEFAULT 0,
			submitted_at TIMESTAMPTZ NULL,
			reviewed_at TIMESTAMPTZ NULL,
			approved_at TIMESTAMPTZ NULL,
			auction_started_at TIMESTAMPTZ NULL,
			auction_ended_at TIMESTAMPTZ NULL,
			sold_at TIMESTAMPTZ NULL,
			withdrawn_at TIMESTAMPTZ NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_batch_status ON items(batch_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_items_seller ON items(seller_id)`,
		`CREATE TABLE IF NOT EXISTS bids (
			id TEXT PRIMARY KEY,
			item_id UUID NOT NULL REFERENCES items(id),
			bidder_id UUID NOT NULL REFERENCES users(id),
			bidder_name TEXT NOT NULL,
			amount NUMERIC(10,2) NOT NULL,
			status TEXT NOT NULL,
			placed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_item_amount ON bids(item_id, amount DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_bidder_time ON bids(bidder_id, placed_at DESC)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			item_id UUID NOT NULL REFERENCES items(id),
			buyer_id UUID NOT NULL REFERENCES users(id),
			seller_id UUID NOT NULL REFERENCES users(id),
			winning_bid_id TEXT NOT NULL REFERENCES bids(id),
			amount NUMERIC(10,2) NOT NULL,
			platform_fee NUMERIC(10,2) NOT NULL,
			seller_payout NUMERIC(10,2) NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('PENDING','COMPLETED','FAILED','REFUNDED')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_buyer ON transactions(buyer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_seller ON transactions(seller_id)`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			item_id UUID NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			notify_on_bid BOOLEAN NOT NULL DEFAULT TRUE,
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, item_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlist_item ON watchlist(item_id)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
