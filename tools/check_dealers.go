package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/bullionwatch/scraper/catalog"
)

// This utility checks that every product URL in the dealer catalog is
// reachable over plain HTTP. It catches moved or retired product pages
// before a deploy, without starting a browser.

func main() {
	_ = godotenv.Load()

	fmt.Println("=== Dealer Catalog Check ===")
	fmt.Println()

	dealers := catalog.Dealers()

	if err := catalog.Validate(dealers); err != nil {
		fmt.Printf("catalog invalid: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	failures := 0

	for _, dealer := range dealers {
		fmt.Printf("%s (%s)\n", dealer.DisplayName, dealer.DealerID)

		for _, product := range dealer.Products {
			url := dealer.ProductURL(product)

			status, err := probe(client, url)
			if err != nil {
				fmt.Printf("   ❌ %s: %v\n", product.ProductName, err)

				failures++

				continue
			}

			if status >= 400 {
				fmt.Printf("   ❌ %s: HTTP %d (%s)\n", product.ProductName, status, url)

				failures++

				continue
			}

			fmt.Printf("   ✅ %s: HTTP %d\n", product.ProductName, status)
		}

		fmt.Println()
	}

	if failures > 0 {
		fmt.Printf("❌ %d product URLs failed\n", failures)
		os.Exit(1)
	}

	fmt.Printf("✅ All %d product URLs reachable\n", catalog.TotalProducts(dealers))
}

func probe(client *http.Client, url string) (int, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}

	defer resp.Body.Close()

	return resp.StatusCode, nil
}
