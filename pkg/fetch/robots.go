package fetch

import (
	"context"
	"io"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsHandler fetches, parses and caches robots.txt per host
type RobotsHandler struct {
	fetcher     *Fetcher
	rateLimiter *RateLimiter
	hostSems    *HostSemaphorePool
	userAgent   string
	mu          sync.Mutex
	cache       map[string]*robotstxt.RobotsData // host -> parsed rules, nil if unavailable
	log         *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler. rateLimiter and hostSems may be nil.
func NewRobotsHandler(fetcher *Fetcher, rateLimiter *RateLimiter, hostSems *HostSemaphorePool, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		rateLimiter: rateLimiter,
		hostSems:    hostSems,
		userAgent:   userAgent,
		cache:       make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// GetRobotsData returns the parsed robots.txt for target's host, fetching it
// on first use. A missing, unreadable or unparsable file yields nil, which
// callers treat as "everything allowed".
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Host
	rh.mu.Lock()
	data, found := rh.cache[host]
	rh.mu.Unlock()
	if found {
		return data
	}

	data = rh.fetchRobots(ctx, target)
	if ctx.Err() != nil {
		// don't cache a result cut short by cancellation
		return data
	}
	rh.mu.Lock()
	rh.cache[host] = data
	rh.mu.Unlock()
	return data
}

func (rh *RobotsHandler) fetchRobots(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	scheme := target.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: target.Host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithField("robots_url", robotsURL)
	robotsLog.Debug("Fetching robots.txt")

	if rh.hostSems != nil {
		if err := rh.hostSems.Acquire(ctx, target.Host); err != nil {
			robotsLog.Warnf("Could not acquire host semaphore: %v", err)
			return nil
		}
		defer rh.hostSems.Release(target.Host)
	}
	if rh.rateLimiter != nil {
		if err := rh.rateLimiter.ApplyDelay(ctx, target.Host, 0); err != nil {
			return nil
		}
		defer rh.rateLimiter.UpdateLastRequestTime(target.Host)
	}

	resp, err := rh.fetcher.Get(ctx, robotsURL)
	if err != nil {
		drain(resp)
		robotsLog.Infof("robots.txt unavailable, allowing all: %v", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		robotsLog.Infof("robots.txt returned status %d, allowing all", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		robotsLog.Warnf("Error reading robots.txt: %v", err)
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt: %v", err)
		return nil
	}
	robotsLog.Info("Loaded robots.txt")
	return data
}

// TestAgent reports whether the handler's user agent may fetch target
func (rh *RobotsHandler) TestAgent(ctx context.Context, target *url.URL) bool {
	data := rh.GetRobotsData(ctx, target)
	if data == nil {
		return true
	}
	return data.TestAgent(target.RequestURI(), rh.userAgent)
}
