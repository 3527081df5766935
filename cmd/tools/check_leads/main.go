package main

import (
	"context"
	"flag"
	"log"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/property-catalog/internal/config"
	"github.com/david/property-catalog/internal/db"
	"github.com/david/property-catalog/internal/models"
)

func main() {
	limit := flag.Int("limit", 10, "number of recent leads to list")
	days := flag.Int("days", 7, "window for the per-category counts")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	store := db.NewLeadStore(pool)

	leads, err := store.RecentLeads(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Name", "Phone", "Category", "Property", "Received"})
	for _, l := range leads {
		t.AppendRow(table.Row{l.Name, l.Phone, l.Category, l.PropertyID, l.CreatedAt.Format("2006-01-02 15:04")})
	}
	t.Render()

	counts, err := store.LeadCounts(ctx, time.Now().AddDate(0, 0, -*days))
	if err != nil {
		log.Fatal(err)
	}
	categories := make([]models.Category, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	summary := table.NewWriter()
	summary.SetOutputMirror(os.Stdout)
	summary.SetTitle("Leads, last %d days", *days)
	summary.AppendHeader(table.Row{"Category", "Leads"})
	total := 0
	for _, c := range categories {
		n := counts[c]
		total += n
		summary.AppendRow(table.Row{c, n})
	}
	summary.AppendFooter(table.Row{"Total", total})
	summary.Render()
}
