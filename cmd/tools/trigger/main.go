package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/property-catalog/internal/auth"
	"github.com/david/property-catalog/internal/catalog"
)

// trigger calls the admin cache endpoints: warm, purge or stats.
func main() {
	base := flag.String("url", "http://localhost:8080", "catalog server base URL")
	category := flag.String("category", "", "comma-separated categories to warm (default: the ALL query)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: trigger [flags] warm|purge|stats\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	adminSecret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	if adminSecret == "" {
		fmt.Println("Missing ADMIN_SECRET environment variable")
		os.Exit(1)
	}

	method, path := http.MethodGet, ""
	switch flag.Arg(0) {
	case "warm":
		method, path = http.MethodPost, "/api/admin/cache/warm"
		if *category != "" {
			path += "?category=" + url.QueryEscape(*category)
		}
	case "purge":
		method, path = http.MethodPost, "/api/admin/cache/purge"
	case "stats":
		path = "/api/admin/cache/stats"
	default:
		flag.Usage()
		os.Exit(2)
	}

	req, err := http.NewRequest(method, strings.TrimRight(*base, "/")+path, nil)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set(auth.AdminHeader, adminSecret)

	client := &http.Client{Timeout: 3 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	fmt.Printf("Response Status: %s\n", resp.Status)
	if resp.StatusCode != http.StatusOK {
		fmt.Println(string(body))
		os.Exit(1)
	}

	if flag.Arg(0) != "stats" {
		fmt.Println(string(body))
		return
	}
	var out struct {
		Data catalog.Stats `json:"data"`
		TTL  string        `json:"ttl"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		fmt.Printf("Error decoding stats: %v\n", err)
		os.Exit(1)
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Entries", "Hits", "Misses", "Stale", "Errors", "TTL"})
	t.AppendRow(table.Row{out.Data.Entries, out.Data.Hits, out.Data.Misses, out.Data.Stale, out.Data.Errors, out.TTL})
	t.Render()
}
