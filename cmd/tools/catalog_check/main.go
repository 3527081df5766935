package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/david/property-catalog/internal/config"
	"github.com/david/property-catalog/internal/ingest"
	"github.com/david/property-catalog/internal/models"
)

// catalog_check fetches every registered category once and prints what each
// adapter returned, bypassing the aggregator and the cache.
func main() {
	only := flag.String("category", "", "check a single category")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal(err)
	}
	logger := cfg.Log.NewLogger()

	reg, err := ingest.LoadRegistry(cfg.Source.RegistryPath)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Source.BaseURL != "" {
		reg.Source.BaseURL = cfg.Source.BaseURL
	}

	fetchCfg := reg.Source.Fetch.Override(cfg.Source.TimeoutSeconds, cfg.Source.MaxRetries, cfg.Source.RateLimitRPS)
	timeout := fetchCfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	fetcher, err := ingest.NewFetcher(cfg.Source.Fetcher, fetchCfg, cfg.Source.AllowPrivateHosts, logger)
	if err != nil {
		log.Fatal(err)
	}
	adapters, err := ingest.NewSheetAdapters(reg, fetcher, ingest.AdapterOptions{}, logger)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Catalog source: %s", reg.Source.BaseURL)
	t.AppendHeader(table.Row{"Category", "Listings", "Featured", "Verified", "With Media", "Duration", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 7, WidthMax: 60},
	})

	failed := 0
	for _, a := range adapters {
		if *only != "" && string(a.Category()) != *only {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout+5)*time.Second)
		start := time.Now()
		items, err := a.Fetch(ctx, a.Category(), models.Filter{TransactionType: models.TransactionUnknown})
		cancel()
		elapsed := time.Since(start).Round(time.Millisecond)

		if err != nil {
			failed++
			t.AppendRow(table.Row{a.Category(), "-", "-", "-", "-", elapsed, err.Error()})
			continue
		}
		var featured, verified, media int
		for _, p := range items {
			if p.Featured {
				featured++
			}
			if p.Verified {
				verified++
			}
			if len(p.Media) > 0 {
				media++
			}
		}
		t.AppendRow(table.Row{a.Category(), len(items), featured, verified, media, elapsed, ""})
	}
	t.Render()

	if failed > 0 {
		os.Exit(1)
	}
}
