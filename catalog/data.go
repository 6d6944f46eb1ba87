package catalog

// Dealers returns the built-in dealer catalog. The roster and the product
// paths change rarely; when they do, the change is a new deploy, not a
// runtime reconfiguration.
func Dealers() []DealerCatalogEntry {
	return []DealerCatalogEntry{
		{
			DealerID:      "monarchmetals",
			DisplayName:   "Monarch Precious Metals",
			BaseURL:       "https://www.monarchpreciousmetals.com",
			BotMitigation: MitigationNone,
			Products: []ProductTarget{
				{ProductName: "1 oz Gold American Eagle", RelativePath: "gold/1-oz-gold-american-eagle"},
				{ProductName: "1 oz Silver American Eagle", RelativePath: "silver/1-oz-silver-american-eagle"},
				{ProductName: "10 oz Silver Bar", RelativePath: "silver/10-oz-silver-bar"},
			},
		},
		{
			DealerID:      "libertycoin",
			DisplayName:   "Liberty Coin & Bullion",
			BaseURL:       "https://www.libertycoinbullion.com",
			BotMitigation: MitigationNone,
			Products: []ProductTarget{
				{ProductName: "1 oz Gold American Eagle", RelativePath: "products/gold-american-eagle-1oz"},
				{ProductName: "1 oz Silver American Eagle", RelativePath: "products/silver-american-eagle-1oz"},
				{ProductName: "1 oz Gold Bar", RelativePath: "products/gold-bar-1oz"},
			},
		},
		{
			DealerID:      "summitbullion",
			DisplayName:   "Summit Bullion",
			BaseURL:       "https://www.summitbullion.com",
			BotMitigation: MitigationProtected,
			Products: []ProductTarget{
				{ProductName: "1 oz Gold American Eagle", RelativePath: "buy/1-oz-american-gold-eagle"},
				{ProductName: "1 oz Silver American Eagle", RelativePath: "buy/1-oz-american-silver-eagle"},
				{ProductName: "10 oz Silver Bar", RelativePath: "buy/10-oz-silver-bar"},
				{ProductName: "1 oz Gold Bar", RelativePath: "buy/1-oz-gold-bar"},
			},
		},
		{
			DealerID:      "pacificbullion",
			DisplayName:   "Pacific Bullion Exchange",
			BaseURL:       "https://www.pacificbullionexchange.com",
			BotMitigation: MitigationProtected,
			Products: []ProductTarget{
				{ProductName: "1 oz Gold American Eagle", RelativePath: "catalog/gold/american-eagle-1-oz"},
				{ProductName: "1 oz Silver American Eagle", RelativePath: "catalog/silver/american-eagle-1-oz"},
			},
		},
	}
}
