package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/datashop/datashop/config"
	"github.com/datashop/datashop/internal/cache"
	"github.com/datashop/datashop/internal/events"
	"github.com/datashop/datashop/internal/fetch"
	"github.com/datashop/datashop/internal/httputil"
	"github.com/datashop/datashop/internal/ingest"
	"github.com/datashop/datashop/internal/logger"
	"github.com/datashop/datashop/internal/metrics"
	"github.com/datashop/datashop/internal/query"
	"github.com/datashop/datashop/internal/stealth"
	"github.com/datashop/datashop/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "datashop",
	Short: "datashop - marketplace capture CLI & MCP server",
	Long:  "Captures Shopee, Lazada and Tiki product data over time and serves price history, details and reviews.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return cfg.Validate()
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Prices print as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true

	rootCmd.PersistentFlags().String("store", "", "Storage backend: file, mongo, postgres, memory")
	rootCmd.PersistentFlags().String("data-dir", "", "Base directory of the file store")
	rootCmd.PersistentFlags().String("delay-profile", "", "Jitter on direct storefront calls: off, cautious, normal, aggressive")
	rootCmd.PersistentFlags().Bool("respect-robots", true, "Respect robots.txt rules")
	rootCmd.PersistentFlags().String("proxies", "", "Proxy list (comma separated URLs or a file path)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

func initConfig() {
	cfg = config.DefaultConfig()
	cfg.LoadFromEnv()

	// Override from flags
	if v, _ := rootCmd.PersistentFlags().GetString("store"); v != "" {
		cfg.Store = v
	}
	if v, _ := rootCmd.PersistentFlags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := rootCmd.PersistentFlags().GetString("delay-profile"); v != "" {
		cfg.DelayProfile = v
	}
	if v, _ := rootCmd.PersistentFlags().GetBool("respect-robots"); !v {
		cfg.RespectRobots = false
	}
	if v, _ := rootCmd.PersistentFlags().GetString("proxies"); v != "" {
		cfg.Proxies = v
	}
	if v, _ := rootCmd.PersistentFlags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}

	logger.Init(cfg.LogLevel)
}

// buildHTTPClient creates the stealth-wrapped client used for direct Tiki calls.
func buildHTTPClient() (*http.Client, error) {
	baseTransport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	var proxyRotator *stealth.ProxyRotator
	if cfg.Proxies != "" {
		providers, err := stealth.ParseProxies(cfg.Proxies)
		if err != nil {
			return nil, err
		}
		proxyRotator = stealth.NewProxyRotator(providers)
	}

	robotsClient := httputil.NewHTTPClient(baseTransport, 10*time.Second)
	transport := &stealth.Transport{
		Base:        baseTransport,
		Robots:      stealth.NewRobotsChecker(robotsClient, cfg.RespectRobots),
		Fingerprint: stealth.NewFingerprintPool(),
		Proxy:       proxyRotator,
		Jitter:      stealth.NewJitter(stealth.DelayProfile(cfg.DelayProfile)),
		RateLimiter: stealth.NewLimiter(cfg.RatePerSecond, cfg.RateBurst),
	}

	return httputil.NewHTTPClient(transport, cfg.HTTPTimeout), nil
}

// buildRegistry registers a fetcher per platform. Shopee and Lazada need the
// scraping proxy token and are left out without one.
func buildRegistry() (*fetch.Registry, error) {
	retry := httputil.DefaultRetryPolicy()
	retry.MaxRetries = cfg.HTTPRetries

	direct, err := buildHTTPClient()
	if err != nil {
		return nil, err
	}
	reg := fetch.NewRegistry(fetch.NewTiki(fetch.Options{
		Client:  direct,
		BaseURL: cfg.TikiBaseURL,
		Retry:   retry,
	}))

	if cfg.HasScraperToken() {
		proxyOpts := fetch.Options{
			Client:  httputil.NewHTTPClient(nil, cfg.HTTPTimeout),
			BaseURL: cfg.ScraperBaseURL,
			Token:   cfg.ScraperToken,
			Retry:   retry,
		}
		reg.Register(fetch.NewShopee(proxyOpts))
		reg.Register(fetch.NewLazada(proxyOpts))
	} else {
		logger.ForComponent("cmd").Warn().Msg("SCRAPER_TOKEN not set; shopee and lazada URLs will be skipped")
	}
	return reg, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	s, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	return s, nil
}

func buildPublisher() events.Publisher {
	if cfg.RedisAddr == "" {
		return events.Nop{}
	}
	return events.NewRedisPublisher(cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLen)
}

// buildCache returns the query cache, or nil when memcache is not configured.
func buildCache() cache.Cache {
	if cfg.MemcacheAddr == "" {
		return nil
	}
	return cache.NewMemcacheCache(cfg.MemcacheAddr, "datashop:")
}

func buildQuery(r store.Reader) *query.Service {
	var opts []query.Option
	if c := buildCache(); c != nil {
		opts = append(opts, query.WithCache(c, cfg.CacheTTL))
	}
	return query.NewService(r, opts...)
}

// buildRunner wires the ingestion pipeline. The returned close func releases the
// event publisher.
func buildRunner(w store.Writer, rec *metrics.Recorder) (*ingest.Runner, func(), error) {
	reg, err := buildRegistry()
	if err != nil {
		return nil, nil, err
	}
	pub := buildPublisher()
	r := ingest.NewRunner(reg, w,
		ingest.WithDelay(cfg.FetchDelay),
		ingest.WithPublisher(pub),
		ingest.WithMetrics(rec),
		ingest.WithCache(buildCache()),
	)
	return r, func() { pub.Close() }, nil
}
