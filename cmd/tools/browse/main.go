package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sirupsen/logrus"

	"github.com/david/property-catalog/internal/client"
	"github.com/david/property-catalog/internal/models"
)

// browse drives the request coordinator against a running server, the same
// way a listing page does: one filtered fetch, then load-more pages, then
// local refinement of what was loaded.
func main() {
	base := flag.String("url", "http://localhost:8080", "catalog server base URL")
	category := flag.String("category", "all", "category to browse")
	tt := flag.String("type", "", "transaction type: buy or lease")
	search := flag.String("search", "", "free-text search")
	location := flag.String("location", "", "location filter")
	sortKey := flag.String("sort", "", "server sort: price_asc, price_desc, newest, area_desc")
	pages := flag.Int("pages", 1, "pages to load")
	pageSize := flag.Int("page-size", 20, "items per page")
	minPrice := flag.Float64("min-price", 0, "local refinement: minimum price")
	maxPrice := flag.Float64("max-price", 0, "local refinement: maximum price")
	priceOrder := flag.String("price-order", "", "local price order: asc or desc")
	flag.Parse()

	cat, ok := models.ParseCategory(*category)
	if !ok {
		fmt.Printf("Unknown category %q\n", *category)
		os.Exit(2)
	}
	txn, ok := models.ParseTransactionType(*tt)
	if !ok {
		fmt.Printf("Unknown transaction type %q\n", *tt)
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	coord := client.NewCoordinator(client.NewHTTPClient(*base, 30*time.Second), client.Options{
		PageSize: *pageSize,
		Timeout:  time.Minute,
	}, logger)
	defer coord.Close()

	coord.ApplyFilter(models.Filter{
		Category:        cat,
		TransactionType: txn,
		Search:          *search,
		Location:        *location,
		Sort:            *sortKey,
	})
	coord.Wait()
	for i := 1; i < *pages; i++ {
		if !coord.LoadMore() {
			break
		}
		coord.Wait()
	}

	coord.SetRefinement(client.Refinement{MinPrice: *minPrice, MaxPrice: *maxPrice})
	switch *priceOrder {
	case "asc":
		coord.SetPriceOrder(client.PriceOrderAsc)
	case "desc":
		coord.SetPriceOrder(client.PriceOrderDesc)
	}

	snap := coord.Snapshot()
	if snap.Err != nil {
		fmt.Printf("Error: %v\n", snap.Err)
		os.Exit(1)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("%s: %d shown, %d loaded of %d (%s)", cat, len(snap.Items), snap.Loaded, snap.Total, snap.ServedFrom)
	t.AppendHeader(table.Row{"#", "Category", "ID", "Title", "Location", "Price", "Config", "Flags"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 40},
		{Number: 6, Align: text.AlignRight},
	})
	for i, p := range snap.Items {
		flags := ""
		if p.Featured {
			flags += "F"
		}
		if p.Verified {
			flags += "V"
		}
		t.AppendRow(table.Row{i + 1, p.Category, p.ID, p.Title, p.Location, p.Price, p.Configuration, flags})
	}
	if snap.HasMore {
		t.AppendFooter(table.Row{"", "", "", "more available: --pages", "", "", "", ""})
	}
	t.Render()
}
