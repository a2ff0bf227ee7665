package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mweigel/bookcat/catalog"
	"github.com/mweigel/bookcat/config"
	"github.com/mweigel/bookcat/export"
	"github.com/mweigel/bookcat/models"
	"github.com/mweigel/bookcat/session"
)

const usage = `usage: bookcat <command> [flags]

commands:
  login         authenticate and store the session credentials
  logout        clear the stored session credentials
  refresh       exchange the refresh token for a new token pair
  search        query the catalog (id, isbn, filters, or browse all pages)
  rate          change an entry's star rating (1-5)
  delete        delete an entry
  create        create a new entry
  upload-image  attach a cover image to an entry by isbn
  export        export the whole catalog to csv/json files

run 'bookcat <command> -h' for command flags
`

func main() {
	_ = godotenv.Load(".env")

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	command := os.Args[1]
	args := os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch command {
	case "login":
		code = runLogin(ctx, args)
	case "logout":
		code = runLogout(args)
	case "refresh":
		code = runRefresh(ctx, args)
	case "search":
		code = runSearch(ctx, args)
	case "rate":
		code = runRate(ctx, args)
	case "delete":
		code = runDelete(ctx, args)
	case "create":
		code = runCreate(ctx, args)
	case "upload-image":
		code = runUploadImage(ctx, args)
	case "export":
		code = runExport(ctx, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		code = 2
	}
	os.Exit(code)
}

// commonFlags registers the flags every command shares and returns the lazily
// evaluated config builder.
func commonFlags(fs *flag.FlagSet) func() (*config.Config, error) {
	defaults := config.DefaultConfig()
	baseDefault := defaults.BaseURL
	if value, ok := config.EnvString("BOOKCAT_BASE_URL"); ok {
		baseDefault = value
	}
	sessionDefault := defaults.SessionFile
	if value, ok := config.EnvString("BOOKCAT_SESSION_FILE"); ok {
		sessionDefault = value
	}

	baseURL := fs.String("base-url", baseDefault, "Backend base URL")
	sessionFile := fs.String("session-file", sessionDefault, "Session credentials file")
	timeoutMs := fs.Int("timeout", int(defaults.Timeout/time.Millisecond), "Request timeout (milliseconds)")
	rps := fs.Int("rps", defaults.RequestsPerSec, "Outbound requests per second (0 = unlimited)")
	verbose := fs.Bool("v", false, "Enable verbose logging")

	return func() (*config.Config, error) {
		cfg := config.DefaultConfig()
		cfg.BaseURL = strings.TrimSuffix(*baseURL, "/")
		cfg.SessionFile = *sessionFile
		cfg.Timeout = time.Duration(*timeoutMs) * time.Millisecond
		cfg.RequestsPerSec = *rps
		cfg.Verbose = *verbose
		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		logger, level := newLogger(cfg.Verbose)
		slog.SetDefault(logger)
		slog.SetLogLoggerLevel(level.Level())
		return cfg, nil
	}
}

func buildClient(cfg *config.Config) (*catalog.Client, *session.Store, *session.Refresher, error) {
	store := session.NewStore(cfg.SessionFile, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	refresher := session.NewRefresher(cfg.BaseURL, cfg.Timeout, store)
	client, err := catalog.NewClient(cfg, store, refresher)
	if err != nil {
		return nil, nil, nil, err
	}
	return client, store, refresher, nil
}

func runLogin(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	buildCfg := commonFlags(fs)
	username := fs.String("username", "", "Backend username")
	password := fs.String("password", "", "Backend password (or BOOKCAT_PASSWORD)")
	fs.Parse(args)

	cfg, err := buildCfg()
	if err != nil {
		return fail("invalid configuration", err)
	}
	if *username == "" {
		fmt.Fprintln(os.Stderr, "login: -username is required")
		return 2
	}
	pass := *password
	if pass == "" {
		pass, _ = config.EnvString("BOOKCAT_PASSWORD")
	}
	if pass == "" {
		fmt.Fprintln(os.Stderr, "login: no password given (use -password or BOOKCAT_PASSWORD)")
		return 2
	}

	_, _, refresher, err := buildClient(cfg)
	if err != nil {
		return fail("initialising client", err)
	}
	if err := refresher.Login(ctx, *username, pass); err != nil {
		return fail("login failed", err)
	}
	fmt.Printf("logged in as %s\n", *username)
	return 0
}

func runLogout(args []string) int {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	buildCfg := commonFlags(fs)
	fs.Parse(args)

	cfg, err := buildCfg()
	if err != nil {
		return fail("invalid configuration", err)
	}
	store := session.NewStore(cfg.SessionFile, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err := store.Clear(); err != nil {
		return fail("logout failed", err)
	}
	fmt.Println("session cleared")
	return 0
}

func runRefresh(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	buildCfg := commonFlags(fs)
	fs.Parse(args)

	cfg, err := buildCfg()
	if err != nil {
		return fail("invalid configuration", err)
	}
	_, _, refresher, err := buildClient(cfg)
	if err != nil {
		return fail("initialising client", err)
	}
	if err := refresher.Refresh(ctx); err != nil {
		return fail("refresh failed", err)
	}
	fmt.Println("token pair refreshed")
	return 0
}

func runSearch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	buildCfg := commonFlags(fs)
	query := fs.String("q", "", "Query text: id or isbn (empty = browse all)")
	mediaType := fs.String("art", "", "Media type filter: EPUB, HARDCOVER, or PAPERBACK")
	minRating := fs.Int("min-rating", 0, "Minimum rating filter (1-5, 0 = unset)")
	page := fs.Int("page", 0, "Page index (0-based, browse-all only)")
	size := fs.Int("size", config.DefaultConfig().PageSize, "Page size (browse-all only)")
	fs.Parse(args)

	cfg, err := buildCfg()
	if err != nil {
		return fail("invalid configuration", err)
	}
	client, _, _, err := buildClient(cfg)
	if err != nil {
		return fail("initialising client", err)
	}

	result, err := client.Search(ctx, catalog.Query{
		Text:      *query,
		MediaType: models.MediaType(*mediaType),
		MinRating: *minRating,
		Page:      *page,
		Size:      *size,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "search: %v\n", err)
		// empty-but-well-formed outcomes are not process failures
		if errors.Is(err, catalog.ErrNoContent) || errors.Is(err, catalog.ErrNotModified) {
			return 0
		}
		return 1
	}

	printResult(result)
	return 0
}

func runRate(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("rate", flag.ExitOnError)
	buildCfg := commonFlags(fs)
	id := fs.String("id", "", "Entry identifier")
	rating := fs.Int("rating", 0, "New rating (1-5)")
	fs.Parse(args)

	cfg, err := buildCfg()
	if err != nil {
		return fail("invalid configuration", err)
	}
	if *id == "" {
		fmt.Fprintln(os.Stderr, "rate: -id is required")
		return 2
	}
	client, _, _, err := buildClient(cfg)
	if err != nil {
		return fail("initialising client", err)
	}

	// Fetch the entry first: full-entry replacement needs a complete current
	// copy, and the fetch also records the version token from the header.
	result, err := client.Search(ctx, catalog.Query{Text: *id})
	if err != nil {
		return fail("loading entry", err)
	}

	if err := client.UpdateRating(ctx, *id, *rating, result); err != nil {
		if errors.Is(err, catalog.ErrNotAuthenticated) {
			fmt.Fprintln(os.Stderr, "rate: not authenticated (run 'bookcat login' or 'bookcat refresh' first)")
			return 1
		}
		return fail("rating update failed", err)
	}
	fmt.Printf("entry %s rated %d\n", *id, *rating)
	return 0
}

func runDelete(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	buildCfg := commonFlags(fs)
	id := fs.String("id", "", "Entry identifier")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	fs.Parse(args)

	cfg, err := buildCfg()
	if err != nil {
		return fail("invalid configuration", err)
	}
	if *id == "" {
		fmt.Fprintln(os.Stderr, "delete: -id is required")
		return 2
	}
	if !*yes && !confirm(fmt.Sprintf("delete entry %s?", *id)) {
		fmt.Println("aborted")
		return 0
	}
	client, _, _, err := buildClient(cfg)
	if err != nil {
		return fail("initialising client", err)
	}

	if err := client.Delete(ctx, *id, nil); err != nil {
		if errors.Is(err, catalog.ErrNotAuthenticated) {
			fmt.Fprintln(os.Stderr, "delete: not authenticated (run 'bookcat login' or 'bookcat refresh' first)")
			return 1
		}
		return fail("delete failed", err)
	}
	fmt.Printf("entry %s deleted\n", *id)
	return 0
}

func runCreate(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	buildCfg := commonFlags(fs)
	isbn := fs.String("isbn", "", "ISBN (required)")
	title := fs.String("titel", "", "Title (required)")
	subtitle := fs.String("untertitel", "", "Subtitle")
	rating := fs.Int("rating", 1, "Rating (1-5)")
	mediaType := fs.String("art", string(models.Epub), "Media type: EPUB, HARDCOVER, or PAPERBACK")
	price := fs.Float64("preis", 0, "Price")
	discount := fs.Float64("rabatt", 0, "Discount as a fraction (0-1)")
	available := fs.Bool("lieferbar", false, "Availability flag")
	date := fs.String("datum", "", "Release date (YYYY-MM-DD)")
	homepage := fs.String("homepage", "", "Homepage URL")
	keywords := fs.String("schlagwoerter", "", "Comma-separated keywords")
	fs.Parse(args)

	cfg, err := buildCfg()
	if err != nil {
		return fail("invalid configuration", err)
	}
	client, _, _, err := buildClient(cfg)
	if err != nil {
		return fail("initialising client", err)
	}

	book := &models.Book{
		ISBN:        *isbn,
		Rating:      *rating,
		MediaType:   models.MediaType(*mediaType),
		Price:       *price,
		Discount:    *discount,
		Available:   *available,
		ReleaseDate: *date,
		Homepage:    *homepage,
		Title:       models.Title{Main: *title, Subtitle: *subtitle},
	}
	if *keywords != "" {
		for _, keyword := range strings.Split(*keywords, ",") {
			if trimmed := strings.TrimSpace(keyword); trimmed != "" {
				book.Keywords = append(book.Keywords, trimmed)
			}
		}
	}

	id, err := client.Create(ctx, book)
	if err != nil {
		return fail("create failed", err)
	}
	if id != "" {
		fmt.Printf("entry created with id %s\n", id)
	} else {
		fmt.Println("entry created")
	}
	return 0
}

func runUploadImage(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("upload-image", flag.ExitOnError)
	buildCfg := commonFlags(fs)
	isbn := fs.String("isbn", "", "ISBN of the target entry")
	file := fs.String("file", "", "Image file path")
	fs.Parse(args)

	cfg, err := buildCfg()
	if err != nil {
		return fail("invalid configuration", err)
	}
	if *isbn == "" || *file == "" {
		fmt.Fprintln(os.Stderr, "upload-image: -isbn and -file are required")
		return 2
	}
	client, _, _, err := buildClient(cfg)
	if err != nil {
		return fail("initialising client", err)
	}

	if err := client.UploadImage(ctx, *isbn, *file); err != nil {
		return fail("upload failed", err)
	}
	fmt.Println("image uploaded")
	return 0
}

func runExport(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	buildCfg := commonFlags(fs)
	defaults := config.DefaultConfig()
	outputDefault := defaults.OutputFile
	if value, ok := config.EnvString("BOOKCAT_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaults.MetricsAddr
	if value, ok := config.EnvString("BOOKCAT_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	output := fs.String("output", outputDefault, "Output file path")
	format := fs.String("format", defaults.OutputFormat, "Output format: csv, json, or dual")
	size := fs.Int("size", defaults.PageSize, "Entries fetched per page")
	workers := fs.Int("workers", 2, "Pipeline worker count")
	metricsAddr := fs.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	fs.Parse(args)

	cfg, err := buildCfg()
	if err != nil {
		return fail("invalid configuration", err)
	}
	cfg.OutputFile = *output
	cfg.OutputFormat = strings.ToLower(*format)
	cfg.PageSize = *size
	cfg.MetricsAddr = *metricsAddr
	if err := cfg.Validate(); err != nil {
		return fail("invalid configuration", err)
	}

	client, _, _, err := buildClient(cfg)
	if err != nil {
		return fail("initialising client", err)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fail("creating writer", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && client.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(client.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := export.NewPipeline(writer)
	p.Start(*workers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	exporter := export.NewExporter(client, p, cfg.PageSize)
	summary, err := exporter.Run(ctx)
	if err != nil {
		p.Close()
		return fail("export failed", err)
	}
	if err := p.Close(); err != nil {
		return fail("pipeline shutdown failed", err)
	}
	if summary.Entries > 0 {
		if err := writer.Validate(); err != nil {
			return fail("output validation failed", err)
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printExportSummary(summary, p.GetMetrics(), cfg.OutputFile)
	return 0
}

func createWriter(format, filename string) (export.OutputWriter, error) {
	switch format {
	case "json":
		return export.NewJSONWriter(filename)
	case "csv":
		return export.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return export.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printResult(result *models.QueryResult) {
	if result.Len() == 0 {
		fmt.Println("no entries found")
		return
	}
	for i := range result.Entries {
		entry := &result.Entries[i]
		fmt.Printf("id=%s  %s\n", entry.ID, entry.Title)
		fmt.Printf("  isbn=%s  rating=%d  art=%s  preis=%.2f  rabatt=%.1f%%  lieferbar=%t\n",
			entry.ISBN, entry.Rating, entry.MediaType, entry.Price, entry.DiscountPercent(), entry.Available)
		if entry.ReleaseDate != "" || entry.Homepage != "" {
			fmt.Printf("  datum=%s  homepage=%s\n", entry.ReleaseDate, entry.Homepage)
		}
		if len(entry.Keywords) > 0 {
			fmt.Printf("  schlagwoerter=%s\n", strings.Join(entry.Keywords, ", "))
		}
	}
	if result.Page != nil {
		fmt.Printf("page %d/%d (%d entries total)\n",
			result.Page.Number+1, result.Page.TotalPages, result.Page.TotalElements)
	}
}

func printExportSummary(summary *export.Summary, metrics map[string]interface{}, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Export complete")

	processed := int64(0)
	if value, ok := metrics["processed_entries"].(int64); ok {
		processed = value
	}

	duration := summary.EndTime.Sub(summary.StartTime)
	fmt.Printf("  Pages:         %d\n", summary.Pages)
	fmt.Printf("  Entries:       %d\n", summary.Entries)
	fmt.Printf("  Written:       %d\n", processed)
	if validation, ok := metrics["validation_errors"].(map[string]int); ok && len(validation) > 0 {
		fmt.Printf("  Validation:    %v\n", validation)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func fail(message string, err error) int {
	slog.Error(message, slog.Any("error", err))
	return 1
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
