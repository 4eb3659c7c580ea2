package config

import "time"

// OutputMode selects the output strategy for extracted page text
type OutputMode string

const (
	OutputLines OutputMode = "lines" // One line per page, to stdout or a single file
	OutputFiles OutputMode = "files" // One file per page, mirroring the site's URL paths
)

// EngineKind selects the fetch engine that drives the crawl
type EngineKind string

const (
	EngineNative EngineKind = "native" // Built-in worker pool with retries and per-host limits
	EngineColly  EngineKind = "colly"  // gocolly collector
)

// Defaults used by Default and Validate
const (
	DefaultSelector         = "body"
	DefaultFallbackFilename = "index"
	DefaultUserAgent        = "web2text/1.0 (+https://github.com/Sriram-PR/web2text)"
)

// OutputConfig describes where extracted text goes
type OutputConfig struct {
	Mode OutputMode `yaml:"mode"`
	Path string     `yaml:"path,omitempty"` // lines: file path, empty = stdout; files: base directory
}

// Config holds everything a crawl needs. It is built once before the crawl
// starts (defaults, then the optional YAML file, then CLI flags) and is not
// modified afterwards.
type Config struct {
	SeedURL          string        `yaml:"seed_url"`
	Selector         string        `yaml:"selector"`          // CSS selector of the extracted root element(s)
	Delay            time.Duration `yaml:"delay"`             // Pause after each processed page
	Avoid            []string      `yaml:"avoid,omitempty"`   // URL prefixes never followed (absolute or seed-relative)
	Focus            []string      `yaml:"focus,omitempty"`   // URL prefixes whose pages are processed; empty = all
	Output           OutputConfig  `yaml:"output"`            // Output strategy
	FallbackFilename string        `yaml:"fallback_filename"` // File name for URL paths that are empty or end in '/'
	IgnoreRobotsTxt  bool          `yaml:"ignore_robots_txt"`

	Engine                  EngineKind       `yaml:"engine"`
	UserAgent               string           `yaml:"user_agent"`
	NumWorkers              int              `yaml:"num_workers"`
	MaxRequests             int              `yaml:"max_requests"`
	MaxRequestsPerHost      int              `yaml:"max_requests_per_host"`
	DelayPerHost            time.Duration    `yaml:"delay_per_host,omitempty"`
	MaxDepth                int              `yaml:"max_depth,omitempty"` // 0 = unlimited
	MaxPages                int              `yaml:"max_pages,omitempty"` // 0 = unlimited
	MaxPageSizeBytes        int64            `yaml:"max_page_size_bytes,omitempty"`
	MaxRetries              int              `yaml:"max_retries,omitempty"`
	InitialRetryDelay       time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay           time.Duration    `yaml:"max_retry_delay,omitempty"`
	SemaphoreAcquireTimeout time.Duration    `yaml:"semaphore_acquire_timeout,omitempty"`
	GlobalCrawlTimeout      time.Duration    `yaml:"global_crawl_timeout,omitempty"`
	StateDir                string           `yaml:"state_dir,omitempty"`   // Scratch dir for the visited set; empty = in memory
	VisitedLog              string           `yaml:"visited_log,omitempty"` // Optional file listing every visited URL
	HTTPClientSettings      HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil = default (true)
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Default returns a Config with every default applied and no seed URL
func Default() *Config {
	cfg := &Config{
		Selector:         DefaultSelector,
		Output:           OutputConfig{Mode: OutputLines},
		FallbackFilename: DefaultFallbackFilename,
		Engine:           EngineNative,
		UserAgent:        DefaultUserAgent,
	}
	cfg.applyCrawlDefaults()
	cfg.validateHTTPClientSettings()
	return cfg
}

// ObeyRobotsTxt reports whether engines should honour robots.txt
func (c *Config) ObeyRobotsTxt() bool {
	return !c.IgnoreRobotsTxt
}
