package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Sriram-PR/web2text/pkg/utils"
)

// Validate checks Config fields and applies sensible defaults.
// Returns collected warnings and any fatal error (wrapping utils.ErrConfig).
// Modifies receiver in place to apply defaults.
func (c *Config) Validate() (warnings []string, err error) {
	// Required: SeedURL
	if c.SeedURL == "" {
		return nil, fmt.Errorf("%w: a seed URL is required", utils.ErrConfig)
	}
	seed, parseErr := url.Parse(c.SeedURL)
	if parseErr != nil {
		return nil, fmt.Errorf("%w: invalid seed URL '%s': %v", utils.ErrConfig, c.SeedURL, parseErr)
	}
	if (seed.Scheme != "http" && seed.Scheme != "https") || seed.Host == "" {
		return nil, fmt.Errorf("%w: seed URL '%s' must be an absolute http(s) URL", utils.ErrConfig, c.SeedURL)
	}

	if c.Selector == "" {
		c.Selector = DefaultSelector
	}

	if c.Delay < 0 {
		warnings = append(warnings, "delay cannot be negative, setting to 0")
		c.Delay = 0
	}

	switch c.Output.Mode {
	case "":
		c.Output.Mode = OutputLines
	case OutputLines:
	case OutputFiles:
		if c.Output.Path == "" {
			return warnings, fmt.Errorf("%w: output mode 'files' needs a directory", utils.ErrConfig)
		}
	default:
		return warnings, fmt.Errorf("%w: unknown output mode '%s'", utils.ErrConfig, c.Output.Mode)
	}

	if c.FallbackFilename == "" {
		c.FallbackFilename = DefaultFallbackFilename
	} else if utils.SanitizeFilename(c.FallbackFilename) != c.FallbackFilename {
		return warnings, fmt.Errorf("%w: fallback_filename '%s' is not a plain file name", utils.ErrConfig, c.FallbackFilename)
	}

	switch c.Engine {
	case "":
		c.Engine = EngineNative
	case EngineNative, EngineColly:
	default:
		return warnings, fmt.Errorf("%w: unknown engine '%s'", utils.ErrConfig, c.Engine)
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	warnings = append(warnings, c.applyCrawlDefaults()...)
	c.validateHTTPClientSettings()

	return warnings, nil
}

// applyCrawlDefaults fills in engine limits, retry and timeout settings
func (c *Config) applyCrawlDefaults() (warnings []string) {
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 4")
		c.NumWorkers = 4
	}

	if c.MaxRequests <= 0 {
		warnings = append(warnings, "max_requests should be > 0, defaulting to 10")
		c.MaxRequests = 10
	}

	if c.MaxRequestsPerHost <= 0 {
		warnings = append(warnings, "max_requests_per_host should be > 0, defaulting to 2")
		c.MaxRequestsPerHost = 2
	}

	if c.DelayPerHost < 0 {
		warnings = append(warnings, "delay_per_host cannot be negative, setting to 0")
		c.DelayPerHost = 0
	}

	if c.MaxDepth < 0 {
		warnings = append(warnings, "max_depth cannot be negative, setting to 0 (unlimited)")
		c.MaxDepth = 0
	}

	if c.MaxPages < 0 {
		warnings = append(warnings, "max_pages cannot be negative, setting to 0 (unlimited)")
		c.MaxPages = 0
	}

	if c.MaxPageSizeBytes <= 0 {
		c.MaxPageSizeBytes = 50 * 1024 * 1024
	}

	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}

	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}

	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	if c.SemaphoreAcquireTimeout <= 0 {
		c.SemaphoreAcquireTimeout = 30 * time.Second
	}

	if c.GlobalCrawlTimeout < 0 {
		warnings = append(warnings, "global_crawl_timeout cannot be negative, disabling timeout")
		c.GlobalCrawlTimeout = 0
	}

	return warnings
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *Config) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
