package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/web2text/pkg/config"
	"github.com/Sriram-PR/web2text/pkg/models"
	"github.com/Sriram-PR/web2text/pkg/parse"
	"github.com/Sriram-PR/web2text/pkg/storage"
	"github.com/Sriram-PR/web2text/pkg/utils"
)

// CollyEngine drives the crawl with a gocolly collector. It shares the
// native engine's visited store but leaves retries and scheduling to colly.
type CollyEngine struct {
	cfg *config.Config
	log *logrus.Entry
}

// NewCollyEngine creates a CollyEngine using cfg's limits and HTTP settings
func NewCollyEngine(cfg *config.Config, log *logrus.Entry) *CollyEngine {
	return &CollyEngine{cfg: cfg, log: log.WithField("engine", "colly")}
}

// newCollector builds an async collector restricted to the seed's host that
// never follows redirects and hands every response, whatever its status, to
// OnResponse
func (e *CollyEngine) newCollector(ctx context.Context, seed *url.URL, opts Options) (*colly.Collector, error) {
	collectorOpts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.Async(true),
		// dedupe goes through the visited store; colly's own would swallow
		// redirect targets
		colly.AllowURLRevisit(),
		colly.AllowedDomains(seed.Hostname()),
		colly.UserAgent(e.cfg.UserAgent),
	}
	if e.cfg.MaxDepth > 0 {
		// colly counts the seed as depth 1
		collectorOpts = append(collectorOpts, colly.MaxDepth(e.cfg.MaxDepth+1))
	}
	c := colly.NewCollector(collectorOpts...)

	c.IgnoreRobotsTxt = !opts.ObeyRobotsTxt
	c.ParseHTTPErrorResponse = true
	// one byte over the limit so oversized bodies are detectable
	c.MaxBodySize = int(e.cfg.MaxPageSizeBytes) + 1
	if e.cfg.HTTPClientSettings.Timeout > 0 {
		c.SetRequestTimeout(e.cfg.HTTPClientSettings.Timeout)
	}
	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	})

	parallelism := e.cfg.MaxRequestsPerHost
	if parallelism <= 0 {
		parallelism = e.cfg.NumWorkers
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
		Delay:       e.cfg.DelayPerHost,
	}); err != nil {
		return nil, fmt.Errorf("%w: colly limit rule: %w", utils.ErrConfig, err)
	}
	return c, nil
}

// Crawl implements Engine
func (e *CollyEngine) Crawl(ctx context.Context, seedURL string, opts Options, cb Callbacks) error {
	h := newHooks(cb)
	defer h.end()

	seed, err := url.Parse(seedURL)
	if err != nil || !seed.IsAbs() || seed.Host == "" {
		return fmt.Errorf("%w: invalid seed URL '%s'", utils.ErrConfig, seedURL)
	}
	if e.cfg.GlobalCrawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.GlobalCrawlTimeout)
		defer cancel()
	}

	crawlID := uuid.NewString()
	runLog := e.log.WithFields(logrus.Fields{"crawl_id": crawlID, "seed": seed.String()})

	store, err := storage.NewBadgerStore(e.cfg.StateDir, crawlID, runLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			runLog.Warnf("Closing visited store: %v", err)
		}
	}()

	c, err := e.newCollector(ctx, seed, opts)
	if err != nil {
		return err
	}

	var requested, fetched atomic.Int64
	start := time.Now()

	record := func(rawURL string, entry *models.PageDBEntry) {
		key, _, err := parse.ParseAndNormalize(rawURL)
		if err != nil {
			return
		}
		entry.LastAttempt = time.Now()
		if err := store.UpdatePageStatus(key, entry); err != nil {
			runLog.WithField("url", rawURL).Warnf("Recording page status: %v", err)
		}
	}

	// visit claims link in the store and schedules it. from is nil for the
	// seed. Colly reports robots.txt refusals as a Visit error.
	visit := func(from *colly.Request, link string, depth int) {
		if e.cfg.MaxDepth > 0 && depth > e.cfg.MaxDepth {
			return
		}
		key, _, err := parse.ParseAndNormalize(link)
		if err != nil {
			return
		}
		added, err := store.MarkPageVisited(key)
		if err != nil {
			runLog.WithField("url", link).Errorf("Visited store: %v", err)
			return
		}
		if !added {
			return
		}
		if from == nil {
			err = c.Visit(link)
		} else {
			err = from.Visit(link)
		}
		switch {
		case err == nil:
		case errors.Is(err, colly.ErrRobotsTxtBlocked):
			runLog.WithField("url", link).Info("Disallowed by robots.txt, skipping")
			record(link, &models.PageDBEntry{Status: models.PageStatusSkipped, ErrorType: utils.CategorizeError(utils.ErrRobotsDisallowed), Depth: depth})
		default:
			runLog.WithField("url", link).Debugf("Not visited: %v", err)
		}
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if n := requested.Add(1); e.cfg.MaxPages > 0 && n > int64(e.cfg.MaxPages) {
			r.Abort()
			return
		}
		runLog.WithField("url", r.URL.String()).Debug("Requesting")
	})

	// follow filters same-host links through the caller and visits the
	// survivors at depth
	follow := func(r *colly.Response, links []string, depth int) {
		sameHost := make([]string, 0, len(links))
		for _, l := range links {
			if u, err := url.Parse(l); err == nil && parse.SameHost(u, seed) {
				sameHost = append(sameHost, l)
			}
		}
		for _, l := range h.filter(sameHost) {
			visit(r.Request, l, depth)
		}
	}

	deliver := func(page *models.Page) {
		entry := &models.PageDBEntry{Status: models.PageStatusFailure, StatusCode: page.StatusCode, Depth: page.Depth}
		switch {
		case page.Err != nil:
			entry.ErrorType = utils.CategorizeError(page.Err)
		case page.IsRedirect():
			entry.Status = models.PageStatusRedirect
		default:
			entry.Status = models.PageStatusSuccess
			entry.ProcessedAt = time.Now()
		}
		record(page.URL, entry)

		if ctx.Err() != nil {
			return
		}
		fetched.Add(1)
		h.page(ctx, page)
	}

	c.OnResponse(func(r *colly.Response) {
		depth := r.Request.Depth - 1
		page := &models.Page{URL: r.Request.URL.String(), StatusCode: r.StatusCode, Depth: depth}
		switch {
		case page.IsRedirect():
			if loc := r.Headers.Get("Location"); loc != "" {
				if abs, ok := parse.ResolveLink(r.Request.URL, loc); ok {
					follow(r, []string{abs}, depth+1)
				}
			}
		case r.StatusCode >= 400:
			page.Err = fmt.Errorf("%w: %w", utils.ErrFetchFailure, httpStatusError(r.StatusCode))
		case !isHTML(r.Headers.Get("Content-Type")):
			page.Err = fmt.Errorf("%w: %w: content type '%s'", utils.ErrFetchFailure, utils.ErrNotHTML, r.Headers.Get("Content-Type"))
		case int64(len(r.Body)) > e.cfg.MaxPageSizeBytes:
			page.Err = fmt.Errorf("%w: %w: body exceeds %d bytes", utils.ErrFetchFailure, utils.ErrResponseBodyRead, e.cfg.MaxPageSizeBytes)
		default:
			doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
			if err != nil {
				page.Err = fmt.Errorf("%w: %w: %w", utils.ErrFetchFailure, utils.ErrParsing, err)
				break
			}
			doc.Url = r.Request.URL
			page.Doc = doc
			follow(r, parse.ExtractLinks(doc, r.Request.URL), depth+1)
		}
		deliver(page)
	})

	c.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Request == nil {
			runLog.Errorf("Request failed: %v", err)
			return
		}
		deliver(&models.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Depth:      r.Request.Depth - 1,
			Err:        fmt.Errorf("%w: %w", utils.ErrFetchFailure, err),
		})
	})

	runLog.Info("Crawl starting")
	visit(nil, seed.String(), 0)

	waitDone := make(chan struct{})
	go func() { c.Wait(); close(waitDone) }()
	select {
	case <-waitDone:
	case <-ctx.Done():
		runLog.Warnf("Crawl interrupted: %v", ctx.Err())
		<-waitDone
	}

	if e.cfg.VisitedLog != "" {
		if err := store.WriteVisitedLog(e.cfg.VisitedLog); err != nil {
			runLog.Errorf("Writing visited log: %v", err)
		}
	}
	if ctx.Err() == nil {
		reportSeed(store, seed, runLog)
	}
	runLog.WithFields(logrus.Fields{
		"duration": time.Since(start).Round(time.Millisecond).String(),
		"visited":  store.GetVisitedCount(),
		"pages":    fetched.Load(),
	}).Info("Crawl finished")
	return ctx.Err()
}

func httpStatusError(code int) error {
	switch {
	case code >= 500:
		return fmt.Errorf("%w: status %d", utils.ErrServerHTTPError, code)
	case code >= 400:
		return fmt.Errorf("%w: status %d", utils.ErrClientHTTPError, code)
	default:
		return fmt.Errorf("%w: status %d", utils.ErrOtherHTTPError, code)
	}
}
