package sites

import (
	"context"
	"strings"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/catalog"
	"github.com/bullionwatch/scraper/scrape"
)

// MonarchMetals extracts from a WooCommerce storefront. The displayed
// price is the any-quantity cash price.
func MonarchMetals(ctx context.Context, target catalog.ProductTarget, baseURL string, page browser.Page) (scrape.Result, error) {
	const priceSelector = "p.price span.woocommerce-Price-amount"

	doc, err := openProduct(ctx, page, productURL(baseURL, target.RelativePath), priceSelector)
	if err != nil {
		return scrape.Result{}, err
	}

	text, err := selectionText(doc, priceSelector)
	if err != nil {
		return scrape.Result{}, err
	}

	price, err := parsePrice(text)
	if err != nil {
		return scrape.Result{}, err
	}

	stockText := strings.ToLower(doc.Find("p.stock").Text())
	inStock := !strings.Contains(stockText, "out of stock")

	return scrape.Result{
		Price:        price,
		CanonicalURL: canonicalURL(doc, page),
		InStock:      inStock,
	}, nil
}
