package sites

import (
	"context"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/catalog"
	"github.com/bullionwatch/scraper/scrape"
)

// LibertyCoin extracts from a Shopify storefront. Availability comes
// from the add-to-cart button state rather than a stock label.
func LibertyCoin(ctx context.Context, target catalog.ProductTarget, baseURL string, page browser.Page) (scrape.Result, error) {
	const priceSelector = "span.price-item--regular"

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

	_, disabled := doc.Find(`button[name="add"]`).Attr("disabled")

	return scrape.Result{
		Price:        price,
		CanonicalURL: canonicalURL(doc, page),
		InStock:      !disabled,
	}, nil
}
