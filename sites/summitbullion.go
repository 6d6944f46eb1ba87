package sites

import (
	"context"
	"strings"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/catalog"
	"github.com/bullionwatch/scraper/scrape"
)

// SummitBullion extracts from a custom storefront behind bot
// mitigation; the orchestrator hands this strategy an isolated page.
// The price table lists tiered pricing, the first row carrying the
// single-unit card/wire price.
func SummitBullion(ctx context.Context, target catalog.ProductTarget, baseURL string, page browser.Page) (scrape.Result, error) {
	const priceSelector = "table.tiered-pricing td.price-wire"

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

	availability := strings.ToLower(doc.Find("div.product-availability").Text())
	inStock := !strings.Contains(availability, "sold out") &&
		!strings.Contains(availability, "unavailable")

	return scrape.Result{
		Price:        price,
		CanonicalURL: canonicalURL(doc, page),
		InStock:      inStock,
	}, nil
}
