package catalog

import (
	"fmt"
	"strings"
)

// BotMitigationClass describes how aggressively a dealer site polices
// automated access. It decides whether product visits run on the shared
// page or on a throwaway isolated page.
type BotMitigationClass string

const (
	MitigationNone      BotMitigationClass = "none"
	MitigationProtected BotMitigationClass = "protected"
)

// ProductTarget identifies one page to visit for one dealer.
type ProductTarget struct {
	ProductName  string
	RelativePath string
}

// DealerCatalogEntry is one dealer plus the products it lists. Entries are
// loaded once at startup and never mutated afterwards.
type DealerCatalogEntry struct {
	DealerID      string
	DisplayName   string
	BaseURL       string
	BotMitigation BotMitigationClass
	Products      []ProductTarget
}

// Protected reports whether visits to this dealer must use an isolated page.
func (d DealerCatalogEntry) Protected() bool {
	return d.BotMitigation == MitigationProtected
}

// ProductURL joins the dealer base URL with a product's relative path.
func (d DealerCatalogEntry) ProductURL(t ProductTarget) string {
	return strings.TrimRight(d.BaseURL, "/") + "/" + strings.TrimLeft(t.RelativePath, "/")
}

// TotalProducts counts every product across all dealers. One cycle produces
// exactly this many report entries.
func TotalProducts(dealers []DealerCatalogEntry) int {
	total := 0
	for _, d := range dealers {
		total += len(d.Products)
	}

	return total
}

// FindDealer returns the entry for a dealer ID, or false when the
// catalog does not list it.
func FindDealer(dealers []DealerCatalogEntry, dealerID string) (DealerCatalogEntry, bool) {
	for _, d := range dealers {
		if d.DealerID == dealerID {
			return d, true
		}
	}

	return DealerCatalogEntry{}, false
}

// Validate checks the catalog invariants once at startup: at least one
// dealer, unique dealer IDs, absolute base URLs and a non-empty product
// list per dealer.
func Validate(dealers []DealerCatalogEntry) error {
	if len(dealers) == 0 {
		return fmt.Errorf("catalog is empty")
	}

	seen := make(map[string]bool, len(dealers))

	for _, d := range dealers {
		if d.DealerID == "" {
			return fmt.Errorf("dealer with empty id (display name %q)", d.DisplayName)
		}

		if seen[d.DealerID] {
			return fmt.Errorf("duplicate dealer id %q", d.DealerID)
		}

		seen[d.DealerID] = true

		if !strings.HasPrefix(d.BaseURL, "http://") && !strings.HasPrefix(d.BaseURL, "https://") {
			return fmt.Errorf("dealer %q: base url %q is not absolute", d.DealerID, d.BaseURL)
		}

		if len(d.Products) == 0 {
			return fmt.Errorf("dealer %q has no products", d.DealerID)
		}

		for _, p := range d.Products {
			if p.ProductName == "" || p.RelativePath == "" {
				return fmt.Errorf("dealer %q has an incomplete product target", d.DealerID)
			}
		}

		switch d.BotMitigation {
		case MitigationNone, MitigationProtected:
		default:
			return fmt.Errorf("dealer %q: unknown bot mitigation class %q", d.DealerID, d.BotMitigation)
		}
	}

	return nil
}
