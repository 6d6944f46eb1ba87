package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bullionwatch/scraper/scrape"
)

type listingRepository struct {
	db *sql.DB
}

// NewListingRepository returns the persister the scrape orchestrator
// writes through.
func NewListingRepository(db *sql.DB) scrape.Persister {
	return &listingRepository{db: db}
}

// Upsert resolves the dealer and product by their catalog keys and
// writes the listing. An unknown dealer or product means the database
// and the catalog disagree, which is a configuration fault the caller
// must not retry.
func (r *listingRepository) Upsert(ctx context.Context, dealerID, productName string, price float64, canonicalURL string, inStock bool) error {
	const dealerQ = `SELECT id FROM dealers WHERE dealer_key = $1`

	var dealerRowID int64

	err := r.db.QueryRowContext(ctx, dealerQ, dealerID).Scan(&dealerRowID)
	if errors.Is(err, sql.ErrNoRows) {
		return &scrape.ConfigError{Reason: fmt.Sprintf("unknown dealer %q", dealerID)}
	}

	if err != nil {
		return fmt.Errorf("resolve dealer %q: %w", dealerID, err)
	}

	const productQ = `SELECT id FROM products WHERE dealer_id = $1 AND product_name = $2`

	var productRowID int64

	err = r.db.QueryRowContext(ctx, productQ, dealerRowID, productName).Scan(&productRowID)
	if errors.Is(err, sql.ErrNoRows) {
		return &scrape.ConfigError{Reason: fmt.Sprintf("unknown product %q for dealer %q", productName, dealerID)}
	}

	if err != nil {
		return fmt.Errorf("resolve product %q: %w", productName, err)
	}

	const upsertQ = `INSERT INTO listings (dealer_id, product_id, price, canonical_url, in_stock, scraped_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (dealer_id, product_id) DO UPDATE
		SET price = EXCLUDED.price,
			canonical_url = EXCLUDED.canonical_url,
			in_stock = EXCLUDED.in_stock,
			scraped_at = EXCLUDED.scraped_at`

	if _, err := r.db.ExecContext(ctx, upsertQ, dealerRowID, productRowID, price, canonicalURL, inStock); err != nil {
		return fmt.Errorf("upsert listing %s/%s: %w", dealerID, productName, err)
	}

	return nil
}
