// Package postgres persists extracted listings. The schema is three
// tables: dealers, products, listings, with listings keyed by
// (dealer_id, product_id) so repeated scrapes of the same product
// update in place.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/bullionwatch/scraper/catalog"
)

// Open opens and pings a PostgreSQL connection pool.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS dealers (
	id SERIAL PRIMARY KEY,
	dealer_key TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	base_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS products (
	id SERIAL PRIMARY KEY,
	dealer_id INTEGER NOT NULL REFERENCES dealers(id),
	product_name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (dealer_id, product_name)
);

CREATE TABLE IF NOT EXISTS listings (
	id SERIAL PRIMARY KEY,
	dealer_id INTEGER NOT NULL REFERENCES dealers(id),
	product_id INTEGER NOT NULL REFERENCES products(id),
	price NUMERIC(12,2) NOT NULL,
	canonical_url TEXT NOT NULL,
	in_stock BOOLEAN NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (dealer_id, product_id)
);`

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SeedCatalog inserts the dealer roster and its products. Re-running it
// is a no-op for rows that already exist.
func SeedCatalog(ctx context.Context, db *sql.DB, dealers []catalog.DealerCatalogEntry) error {
	const dealerQ = `INSERT INTO dealers (dealer_key, display_name, base_url) VALUES ($1, $2, $3)
		ON CONFLICT (dealer_key) DO UPDATE SET display_name = EXCLUDED.display_name, base_url = EXCLUDED.base_url
		RETURNING id`

	const productQ = `INSERT INTO products (dealer_id, product_name) VALUES ($1, $2)
		ON CONFLICT (dealer_id, product_name) DO NOTHING`

	for _, dealer := range dealers {
		var dealerID int64

		err := db.QueryRowContext(ctx, dealerQ, dealer.DealerID, dealer.DisplayName, dealer.BaseURL).Scan(&dealerID)
		if err != nil {
			return fmt.Errorf("failed to seed dealer %s: %w", dealer.DealerID, err)
		}

		for _, product := range dealer.Products {
			if _, err := db.ExecContext(ctx, productQ, dealerID, product.ProductName); err != nil {
				return fmt.Errorf("failed to seed product %s/%s: %w", dealer.DealerID, product.ProductName, err)
			}
		}
	}

	return nil
}
