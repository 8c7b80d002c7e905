// Command resalescout tracks Amazon.co.jp prices against auction prices
// for registered products and reports which ones are worth buying.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"resalescout/internal/analysis"
	"resalescout/internal/auction"
	"resalescout/internal/cache"
	"resalescout/internal/collect"
	"resalescout/internal/config"
	"resalescout/internal/history"
	"resalescout/internal/importer"
	"resalescout/internal/keepa"
	"resalescout/internal/model"
	"resalescout/internal/proxy"
	"resalescout/internal/registry"
	"resalescout/internal/report"
	"resalescout/internal/scrape"
	"resalescout/internal/store"
)

const usage = `usage: resalescout <command> [flags]

commands:
  add      register a product by ASIN and/or keyword
  remove   remove a product by ID
  list     show all registered products
  refresh  fetch current data for one product, the selection, or all
  select   mark products for a selective bulk refresh
  import   bulk-register products from a CSV file
  export   write products to CSV or JSON
  set-key  store the Keepa API key
  collect  run the scheduled collector in the foreground
  serve    run the local relay API
`

func main() {
	log.SetFlags(log.LstdFlags)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	app, err := newApp(cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer app.close()

	if err := app.run(os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

// app bundles the wired components behind the subcommands.
type app struct {
	cfg      config.Config
	registry *registry.Registry
	client   *keepa.Client
	history  *history.DB
}

func newApp(cfg config.Config) (*app, error) {
	st := store.New(filepath.Join(cfg.DataDir, "snapshot.json"))

	// The registry is built twice: a keyless pass to read the snapshot,
	// then the real one once the stored key is known.
	reg, err := registry.New(st, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	apiKey := cfg.KeepaAPIKey
	if apiKey == "" {
		apiKey = reg.APIKey()
	}
	client := keepa.New(keepa.Config{
		APIKey:            apiKey,
		Domain:            cfg.KeepaDomain,
		RequestTimeout:    cfg.RequestTimeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})
	auctions := auction.NewProvider(auction.Config{RequestTimeout: cfg.RequestTimeout})

	// Without a key the page scraper stands in for the API; the data is
	// thinner but keeps the tool usable.
	var amazonSource registry.AmazonSource = client
	if apiKey == "" {
		amazonSource = scrape.New(scrape.Config{RequestTimeout: cfg.RequestTimeout})
		log.Print("no API key configured, falling back to page scraping")
	}

	reg, err = registry.New(st, amazonSource, auctions, nil)
	if err != nil {
		return nil, err
	}

	hist, err := history.Open(cfg.HistoryDSN)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, registry: reg, client: client, history: hist}, nil
}

func (a *app) close() {
	if a.history != nil {
		a.history.Close()
	}
}

func (a *app) run(command string, args []string) error {
	switch command {
	case "add":
		return a.cmdAdd(args)
	case "remove":
		return a.cmdRemove(args)
	case "list":
		return a.cmdList(args)
	case "refresh":
		return a.cmdRefresh(args)
	case "select":
		return a.cmdSelect(args)
	case "import":
		return a.cmdImport(args)
	case "export":
		return a.cmdExport(args)
	case "set-key":
		return a.cmdSetKey(args)
	case "collect":
		return a.cmdCollect(args)
	case "serve":
		return a.cmdServe(args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) cmdAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	asin := fs.String("asin", "", "Amazon ASIN")
	keyword := fs.String("keyword", "", "auction search keyword")
	rate := fs.Float64("rate", 0, "target profit rate in percent")
	maxPrice := fs.Int("max-price", 0, "purchase price cap in yen")
	fetch := fs.Bool("fetch", false, "fetch data immediately after registering")
	fs.Parse(args)

	var priceCap *int
	if *maxPrice > 0 {
		priceCap = model.Int(*maxPrice)
	}
	p, err := a.registry.Register(*name, *asin, *keyword, *rate, priceCap)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (%s)\n", p.Name, p.ID)

	if *fetch {
		refreshed, err := a.registry.Refresh(context.Background(), p.ID)
		if err != nil {
			return err
		}
		printProduct(refreshed)
	}
	return nil
}

func (a *app) cmdRemove(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: resalescout remove <id>")
	}
	return a.registry.Remove(fs.Arg(0))
}

func (a *app) cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Parse(args)

	products := a.registry.List()
	if len(products) == 0 {
		fmt.Println("no products registered")
		return nil
	}
	for _, p := range products {
		printProduct(p)
	}
	return nil
}

func (a *app) cmdRefresh(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	all := fs.Bool("all", false, "refresh every product")
	selected := fs.Bool("selected", false, "refresh the selected products and clear the selection")
	fs.Parse(args)

	ctx := context.Background()
	if *all || *selected {
		var failures map[string]error
		if *selected {
			count := len(a.registry.Selected())
			failures = a.registry.RefreshSelected(ctx, registry.NewQueue(a.cfg.RequestsPerMinute))
			for id, err := range failures {
				log.Printf("refresh %s: %v", id, err)
			}
			fmt.Printf("refreshed %d selected products, %d failed\n", count, len(failures))
			return nil
		}
		failures = a.registry.RefreshAll(ctx, registry.NewQueue(a.cfg.RequestsPerMinute))
		for id, err := range failures {
			log.Printf("refresh %s: %v", id, err)
		}
		fmt.Printf("refreshed %d products, %d failed\n", len(a.registry.List()), len(failures))
		return nil
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: resalescout refresh <id> | refresh -all | refresh -selected")
	}
	p, err := a.registry.Refresh(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	printProduct(p)
	return nil
}

func (a *app) cmdSelect(args []string) error {
	fs := flag.NewFlagSet("select", flag.ExitOnError)
	off := fs.Bool("off", false, "unmark instead of mark")
	fs.Parse(args)

	if fs.NArg() == 0 {
		sel := a.registry.Selected()
		if len(sel) == 0 {
			fmt.Println("no products selected")
			return nil
		}
		for _, id := range sel {
			if p, err := a.registry.Get(id); err == nil {
				printProduct(p)
			}
		}
		return nil
	}
	for _, id := range fs.Args() {
		if err := a.registry.Select(id, !*off); err != nil {
			return fmt.Errorf("select %s: %w", id, err)
		}
	}
	return nil
}

func (a *app) cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: resalescout import <file.csv>")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := importer.Import(f, a.registry)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d products\n", result.Added)
	for _, msg := range result.Errors {
		fmt.Fprintf(os.Stderr, "skipped: %s\n", msg)
	}
	return nil
}

func (a *app) cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "csv", "csv or json")
	out := fs.String("o", "", "output file (default stdout)")
	fs.Parse(args)

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	products := a.registry.List()
	switch *format {
	case "csv":
		trends := make(map[string]analysis.Trend)
		for _, p := range products {
			if t, err := a.history.Trend(p.ID, time.Now()); err == nil && t.Samples > 0 {
				trends[p.ID] = t
			}
		}
		return report.ExportCSV(w, products, trends)
	case "json":
		histories := make(map[string][]history.Snapshot)
		for _, p := range products {
			if snaps, err := a.history.ForProduct(p.ID); err == nil && len(snaps) > 0 {
				histories[p.ID] = snaps
			}
		}
		return report.ExportJSON(w, products, histories)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func (a *app) cmdSetKey(args []string) error {
	fs := flag.NewFlagSet("set-key", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: resalescout set-key <api-key>")
	}
	if err := a.registry.SetAPIKey(fs.Arg(0)); err != nil {
		return err
	}
	fmt.Println("API key stored")
	return nil
}

func (a *app) cmdCollect(args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	once := fs.Bool("once", false, "run a single pass and exit")
	schedule := fs.String("schedule", a.cfg.CollectSchedule, "cron schedule")
	fs.Parse(args)

	collector := collect.New(a.registry, a.history, registry.NewQueue(a.cfg.RequestsPerMinute), nil)
	if *once {
		return collector.RunOnce(context.Background())
	}

	if err := collector.Start(*schedule); err != nil {
		return err
	}
	defer collector.Stop()
	waitForSignal()
	return nil
}

func (a *app) cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", a.cfg.ListenAddr, "listen address")
	fs.Parse(args)

	payloadCache, err := cache.New(filepath.Join(a.cfg.DataDir, "payloads.json"))
	if err != nil {
		return err
	}
	handler := proxy.NewHandler(a.client, nil).WithCache(payloadCache, time.Hour)
	server := &http.Server{
		Addr:         *addr,
		Handler:      handler.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	log.Printf("relay listening on %s", *addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func printProduct(p *model.Product) {
	line := fmt.Sprintf("%-36s %-10s %-8s %s", p.ID, p.ASIN, p.Status, p.Name)
	if p.Amazon != nil && p.Amazon.UsedPrice != nil {
		line += fmt.Sprintf("  used=¥%d", *p.Amazon.UsedPrice)
	}
	if p.Auction != nil && p.Auction.AvgPrice != nil {
		line += fmt.Sprintf("  auction=¥%d", *p.Auction.AvgPrice)
	}
	if p.Profit != nil && p.Profit.ProfitRate != nil {
		marker := " "
		if p.Profit.IsProfitable {
			marker = "*"
		}
		line += fmt.Sprintf("  profit=%.1f%%%s", *p.Profit.ProfitRate, marker)
	}
	if p.Status == model.StatusError && p.Error != "" {
		line += "  error: " + p.Error
	}
	fmt.Println(line)
}
