package sites

import (
	"context"
	"fmt"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/catalog"
	"github.com/bullionwatch/scraper/scrape"
)

// PacificBullion extracts from a storefront that renders the price
// client-side and also embeds it in a data attribute, which is the
// stabler of the two.
func PacificBullion(ctx context.Context, target catalog.ProductTarget, baseURL string, page browser.Page) (scrape.Result, error) {
	const priceSelector = "div.product-price[data-price]"

	doc, err := openProduct(ctx, page, productURL(baseURL, target.RelativePath), priceSelector)
	if err != nil {
		return scrape.Result{}, err
	}

	raw, ok := doc.Find(priceSelector).First().Attr("data-price")
	if !ok {
		return scrape.Result{}, fmt.Errorf("price attribute missing on %s", page.URL())
	}

	price, err := parsePrice(raw)
	if err != nil {
		return scrape.Result{}, err
	}

	_, soldOut := doc.Find("div.product-price").Attr("data-sold-out")

	return scrape.Result{
		Price:        price,
		CanonicalURL: canonicalURL(doc, page),
		InStock:      !soldOut,
	}, nil
}
