package config

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/bizcrawl/internal/browser"
	"github.com/sells-group/bizcrawl/internal/enrich"
	"github.com/sells-group/bizcrawl/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	Crawl   CrawlConfig   `yaml:"crawl" mapstructure:"crawl"`
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Elastic ElasticConfig `yaml:"elastic" mapstructure:"elastic"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SearchConfig selects the result set to crawl.
type SearchConfig struct {
	Term       string `yaml:"term" mapstructure:"term"`
	Location   string `yaml:"location" mapstructure:"location"`
	URL        string `yaml:"url" mapstructure:"url"` // direct search URL, overrides term/location
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	MaxResults int    `yaml:"max_results" mapstructure:"max_results"`
}

// CrawlConfig configures the orchestrator.
type CrawlConfig struct {
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	RenderTimeoutSecs int     `yaml:"render_timeout_secs" mapstructure:"render_timeout_secs"`
	ConsentWaitMs     int     `yaml:"consent_wait_ms" mapstructure:"consent_wait_ms"`
	DetailPrefix      string  `yaml:"detail_prefix" mapstructure:"detail_prefix"`
	RatePerSec        float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxRenderFailures int     `yaml:"max_render_failures" mapstructure:"max_render_failures"`
	ScreenshotDir     string  `yaml:"screenshot_dir" mapstructure:"screenshot_dir"`
}

// EnrichConfig configures website contact enrichment.
type EnrichConfig struct {
	Enabled     bool     `yaml:"enabled" mapstructure:"enabled"`
	Paths       []string `yaml:"paths" mapstructure:"paths"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries     int      `yaml:"retries" mapstructure:"retries"`
	MinDelayMs  int      `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs  int      `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	StopPolicy  string   `yaml:"stop_policy" mapstructure:"stop_policy"`
	Fetcher     string   `yaml:"fetcher" mapstructure:"fetcher"` // local, colly or chain
}

// Enrich fetcher names.
const (
	FetcherLocal = "local"
	FetcherColly = "colly"
	FetcherChain = "chain"
)

// BrowserConfig configures the render engine.
type BrowserConfig struct {
	Engine    string `yaml:"engine" mapstructure:"engine"`
	Headless  bool   `yaml:"headless" mapstructure:"headless"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
	ExecPath  string `yaml:"exec_path" mapstructure:"exec_path"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ElasticConfig configures the Elasticsearch store driver.
type ElasticConfig struct {
	Addresses []string `yaml:"addresses" mapstructure:"addresses"`
	Index     string   `yaml:"index" mapstructure:"index"`
	Username  string   `yaml:"username" mapstructure:"username"`
	Password  string   `yaml:"password" mapstructure:"password"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BIZCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("search.term", "")
	v.SetDefault("search.location", "")
	v.SetDefault("search.url", "")
	v.SetDefault("search.base_url", "https://www.yelp.com")
	v.SetDefault("search.max_results", 50)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.render_timeout_secs", 45)
	v.SetDefault("crawl.consent_wait_ms", 1500)
	v.SetDefault("crawl.detail_prefix", "/biz/")
	v.SetDefault("crawl.rate_per_sec", 1.0)
	v.SetDefault("crawl.max_render_failures", 10)
	v.SetDefault("crawl.screenshot_dir", "")
	v.SetDefault("enrich.enabled", true)
	v.SetDefault("enrich.paths", enrich.DefaultPaths)
	v.SetDefault("enrich.timeout_secs", 15)
	v.SetDefault("enrich.retries", 1)
	v.SetDefault("enrich.min_delay_ms", 500)
	v.SetDefault("enrich.max_delay_ms", 1500)
	v.SetDefault("enrich.stop_policy", "email")
	v.SetDefault("enrich.fetcher", FetcherChain)
	v.SetDefault("browser.engine", browser.EngineChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", browser.DefaultUserAgent)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("store.driver", store.DriverSQLite)
	v.SetDefault("store.database_url", "bizcrawl.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("elastic.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elastic.index", "bizcrawl-records")
	v.SetDefault("elastic.username", "")
	v.SetDefault("elastic.password", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var (
	validEngines  = []string{browser.EngineChromedp, browser.EngineRod, browser.EngineHTTP}
	validDrivers  = []string{store.DriverSQLite, store.DriverMySQL, store.DriverPostgres, store.DriverElastic}
	validFetchers = []string{FetcherLocal, FetcherColly, FetcherChain}
)

// Validate checks values that would otherwise fail late, deep inside a
// crawl.
func (c *Config) Validate() error {
	if !slices.Contains(validEngines, c.Browser.Engine) {
		return eris.Errorf("config: browser.engine %q must be one of %v", c.Browser.Engine, validEngines)
	}
	if !slices.Contains(validDrivers, c.Store.Driver) {
		return eris.Errorf("config: store.driver %q must be one of %v", c.Store.Driver, validDrivers)
	}
	if !slices.Contains(validFetchers, c.Enrich.Fetcher) {
		return eris.Errorf("config: enrich.fetcher %q must be one of %v", c.Enrich.Fetcher, validFetchers)
	}
	if _, err := enrich.ParseStopPolicy(c.Enrich.StopPolicy); err != nil {
		return eris.Wrap(err, "config: enrich.stop_policy")
	}
	if c.Enrich.MinDelayMs < 0 || c.Enrich.MaxDelayMs < c.Enrich.MinDelayMs {
		return eris.Errorf("config: enrich delay range %d..%dms is invalid", c.Enrich.MinDelayMs, c.Enrich.MaxDelayMs)
	}
	if c.Crawl.Concurrency < 1 {
		return eris.Errorf("config: crawl.concurrency must be at least 1, got %d", c.Crawl.Concurrency)
	}
	if c.Search.MaxResults < 0 {
		return eris.Errorf("config: search.max_results must not be negative, got %d", c.Search.MaxResults)
	}
	return nil
}

// ValidateSeed checks that a crawl has somewhere to start.
func (c *Config) ValidateSeed() error {
	if strings.TrimSpace(c.Search.URL) == "" && strings.TrimSpace(c.Search.Term) == "" {
		return eris.New("config: search.term or search.url is required")
	}
	return nil
}

// EnrichOptions converts the enrich section into enricher options.
func (c *Config) EnrichOptions() (enrich.Options, error) {
	stop, err := enrich.ParseStopPolicy(c.Enrich.StopPolicy)
	if err != nil {
		return enrich.Options{}, eris.Wrap(err, "config: enrich.stop_policy")
	}
	opts := enrich.DefaultOptions()
	if c.Enrich.Paths != nil {
		opts.Paths = c.Enrich.Paths
	}
	if c.Enrich.TimeoutSecs > 0 {
		opts.Timeout = time.Duration(c.Enrich.TimeoutSecs) * time.Second
	}
	opts.Retries = c.Enrich.Retries
	opts.MinDelay = time.Duration(c.Enrich.MinDelayMs) * time.Millisecond
	opts.MaxDelay = time.Duration(c.Enrich.MaxDelayMs) * time.Millisecond
	opts.Stop = stop
	return opts, nil
}

// BrowserOptions converts the browser and crawl sections into engine
// options.
func (c *Config) BrowserOptions() browser.Options {
	return browser.Options{
		Engine:      c.Browser.Engine,
		Headless:    c.Browser.Headless,
		UserAgent:   c.Browser.UserAgent,
		ExecPath:    c.Browser.ExecPath,
		Timeout:     time.Duration(c.Crawl.RenderTimeoutSecs) * time.Second,
		Concurrency: c.Crawl.Concurrency,
	}
}

// RenderOptions returns the per-render consent settings.
func (c *Config) RenderOptions() browser.RenderOptions {
	return browser.RenderOptions{ConsentWait: time.Duration(c.Crawl.ConsentWaitMs) * time.Millisecond}
}

// StoreOptions converts the store and elastic sections into store.Open
// input.
func (c *Config) StoreOptions() store.Config {
	return store.Config{
		Driver:      c.Store.Driver,
		DatabaseURL: c.Store.DatabaseURL,
		Pool:        &store.PoolConfig{MaxConns: c.Store.MaxConns, MinConns: c.Store.MinConns},
		Elastic: store.ElasticConfig{
			Addresses: c.Elastic.Addresses,
			Index:     c.Elastic.Index,
			Username:  c.Elastic.Username,
			Password:  c.Elastic.Password,
		},
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
