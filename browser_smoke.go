//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/catalog"
)

// Manual smoke check for the browser session: launches a visible
// chromium, opens the first catalog product of every dealer and prints
// the resource counts after each visit. Run with: go run browser_smoke.go

func main() {
	ctx := context.Background()

	manager := browser.NewManager(browser.Config{
		Headless: false,
	})

	fmt.Println("Launching browser...")

	if err := manager.Launch(ctx); err != nil {
		log.Fatalf("could not launch browser: %v", err)
	}
	defer manager.Close(ctx)

	page, err := manager.NewPage(ctx)
	if err != nil {
		log.Fatalf("could not open page: %v", err)
	}

	for _, dealer := range catalog.Dealers() {
		url := dealer.ProductURL(dealer.Products[0])

		fmt.Printf("Visiting %s: %s\n", dealer.DealerID, url)

		if err := page.Goto(url); err != nil {
			fmt.Printf("   navigation failed: %v\n", err)

			continue
		}

		time.Sleep(2 * time.Second)

		counts, err := manager.Counts()
		if err != nil {
			fmt.Printf("   counts unavailable: %v\n", err)

			continue
		}

		fmt.Printf("   contexts=%d pages=%d\n", counts.Contexts, counts.Pages)
	}

	fmt.Println("Clearing storage and caches...")
	manager.ClearStorage(ctx, page)
	manager.ClearCaches(ctx, page)

	fmt.Println("Smoke check complete")
}
