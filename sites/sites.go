// Package sites holds the per-dealer extraction strategies. Each dealer
// gets its own file with its own selectors; everything the strategies
// share (navigation, price parsing, canonical URL resolution) lives here.
package sites

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/scrape"
)

const priceSelectorTimeoutMs = 10_000

// Registry maps dealer IDs to their extraction strategy. The keys must
// match the dealer catalog.
func Registry() map[string]scrape.Strategy {
	return map[string]scrape.Strategy{
		"monarchmetals":  MonarchMetals,
		"libertycoin":    LibertyCoin,
		"summitbullion":  SummitBullion,
		"pacificbullion": PacificBullion,
	}
}

func productURL(baseURL, relativePath string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(relativePath, "/")
}

// openProduct navigates to the product page and waits for the price
// selector before handing back a parsed document.
func openProduct(ctx context.Context, page browser.Page, url, priceSelector string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := page.Goto(url); err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}

	if err := page.WaitVisible(priceSelector, priceSelectorTimeoutMs); err != nil {
		return nil, fmt.Errorf("wait for price element: %w", err)
	}

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page content: %w", err)
	}

	return doc, nil
}

// parsePrice turns a displayed price like "$2,415.30" or "USD 34.85"
// into a float. Only the USD affixes the dealer templates actually use
// are stripped; anything else left over is a rejection, not a guess.
func parsePrice(text string) (float64, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "USD")
	cleaned = strings.TrimSuffix(cleaned, "USD")
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return 0, fmt.Errorf("empty price text %q", text)
	}

	for _, r := range cleaned {
		if (r < '0' || r > '9') && r != '.' {
			return 0, fmt.Errorf("unexpected character %q in price text %q", r, text)
		}
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}

	return price, nil
}

// canonicalURL prefers the page's canonical link and falls back to the
// URL the browser actually landed on.
func canonicalURL(doc *goquery.Document, page browser.Page) string {
	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok && href != "" {
		return href
	}

	return page.URL()
}

func selectionText(doc *goquery.Document, selector string) (string, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("selector %q matched nothing", selector)
	}

	return strings.TrimSpace(sel.Text()), nil
}
