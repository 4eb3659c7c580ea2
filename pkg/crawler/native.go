package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/web2text/pkg/config"
	"github.com/Sriram-PR/web2text/pkg/fetch"
	"github.com/Sriram-PR/web2text/pkg/models"
	"github.com/Sriram-PR/web2text/pkg/parse"
	"github.com/Sriram-PR/web2text/pkg/queue"
	"github.com/Sriram-PR/web2text/pkg/storage"
	"github.com/Sriram-PR/web2text/pkg/utils"
)

// NativeEngine is the built-in engine: a depth-ordered queue drained by a
// pool of workers, with robots.txt checks, global and per-host concurrency
// limits, per-host politeness delays and retrying fetches.
type NativeEngine struct {
	cfg    *config.Config
	log    *logrus.Entry
	client *http.Client
}

// NewNativeEngine creates a NativeEngine using cfg's limits and HTTP settings
func NewNativeEngine(cfg *config.Config, log *logrus.Entry) *NativeEngine {
	return &NativeEngine{
		cfg:    cfg,
		log:    log.WithField("engine", "native"),
		client: fetch.NewClient(cfg.HTTPClientSettings, log),
	}
}

// nativeRun holds the state of a single Crawl call
type nativeRun struct {
	cfg   *config.Config
	opts  Options
	hooks *hooks
	seed  *url.URL
	log   *logrus.Entry
	ctx   context.Context

	store       storage.VisitedStore
	pq          *queue.ThreadSafePriorityQueue
	fetcher     *fetch.Fetcher
	robots      *fetch.RobotsHandler
	rateLimiter *fetch.RateLimiter
	globalSem   *semaphore.Weighted
	hostSems    *fetch.HostSemaphorePool

	wg      sync.WaitGroup // outstanding work items
	claimed atomic.Int64   // URLs accepted into the queue
	fetched atomic.Int64   // pages handed to OnPage
}

// Crawl implements Engine. It returns nil when the frontier is exhausted and
// the context error when the crawl was cancelled or timed out.
func (e *NativeEngine) Crawl(ctx context.Context, seedURL string, opts Options, cb Callbacks) error {
	h := newHooks(cb)
	defer h.end()

	seed, err := url.Parse(seedURL)
	if err != nil || !seed.IsAbs() || seed.Host == "" {
		return fmt.Errorf("%w: invalid seed URL '%s'", utils.ErrConfig, seedURL)
	}

	if e.cfg.GlobalCrawlTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, e.cfg.GlobalCrawlTimeout)
		defer cancelTimeout()
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

	fetcher := fetch.NewFetcher(e.client, fetch.RetryPolicyFrom(e.cfg), e.cfg.UserAgent, runLog)
	rateLimiter := fetch.NewRateLimiter(e.cfg.DelayPerHost, runLog)
	hostSems := fetch.NewHostSemaphorePool(e.cfg.MaxRequestsPerHost, runLog)

	r := &nativeRun{
		cfg:         e.cfg,
		opts:        opts,
		hooks:       h,
		seed:        seed,
		log:         runLog,
		ctx:         ctx,
		store:       store,
		pq:          queue.NewThreadSafePriorityQueue(runLog),
		fetcher:     fetcher,
		robots:      fetch.NewRobotsHandler(fetcher, rateLimiter, hostSems, e.cfg.UserAgent, runLog),
		rateLimiter: rateLimiter,
		globalSem:   semaphore.NewWeighted(int64(e.cfg.MaxRequests)),
		hostSems:    hostSems,
	}
	return r.run()
}

func (r *nativeRun) run() error {
	start := time.Now()
	r.log.Infof("Crawl starting with %d worker(s)", r.cfg.NumWorkers)

	r.enqueue(r.seed.String(), 0)

	var workers errgroup.Group
	for i := 1; i <= r.cfg.NumWorkers; i++ {
		workerLog := r.log.WithField("worker_id", i)
		workers.Go(func() error {
			r.worker(workerLog)
			return nil
		})
	}

	allDone := make(chan struct{})
	go func() { r.wg.Wait(); close(allDone) }()
	select {
	case <-allDone:
		r.log.Debug("Frontier exhausted")
	case <-r.ctx.Done():
		// queued items stay pending in the store
		dropped := r.pq.Drain()
		for range dropped {
			r.wg.Done()
		}
		r.log.Warnf("Crawl interrupted with %d queued page(s) unfetched: %v", len(dropped), r.ctx.Err())
	}
	r.pq.Close()
	_ = workers.Wait()

	if r.cfg.VisitedLog != "" {
		if err := r.store.WriteVisitedLog(r.cfg.VisitedLog); err != nil {
			r.log.Errorf("Writing visited log: %v", err)
		}
	}

	if r.ctx.Err() == nil {
		reportSeed(r.store, r.seed, r.log)
	}
	r.log.WithFields(logrus.Fields{
		"duration": time.Since(start).Round(time.Millisecond).String(),
		"visited":  r.store.GetVisitedCount(),
		"pages":    r.fetched.Load(),
		"hosts":    r.hostSems.Len(),
	}).Info("Crawl finished")

	return r.ctx.Err()
}

// worker pops items until the queue is closed and drained. Once the context
// is cancelled remaining items are released without being fetched.
func (r *nativeRun) worker(workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")
	for {
		item, ok := r.pq.Pop()
		if !ok {
			return
		}
		if r.ctx.Err() != nil {
			r.wg.Done()
			continue
		}
		r.processItem(*item, workerLog)
	}
}

// enqueue claims rawURL in the visited store and queues it. Already-seen
// URLs and anything beyond the depth or page limits are dropped.
func (r *nativeRun) enqueue(rawURL string, depth int) {
	if r.cfg.MaxDepth > 0 && depth > r.cfg.MaxDepth {
		return
	}
	key, _, err := parse.ParseAndNormalize(rawURL)
	if err != nil {
		return
	}
	added, err := r.store.MarkPageVisited(key)
	if err != nil {
		r.log.WithField("url", rawURL).Errorf("Visited store: %v", err)
		return
	}
	if !added {
		return
	}
	if n := r.claimed.Add(1); r.cfg.MaxPages > 0 && n > int64(r.cfg.MaxPages) {
		r.claimed.Add(-1)
		r.log.WithField("url", rawURL).Debug("Page limit reached, not queueing")
		return
	}
	r.wg.Add(1)
	if !r.pq.Add(&models.WorkItem{URL: rawURL, Depth: depth}) {
		r.wg.Done()
		return
	}
	r.log.WithFields(logrus.Fields{"url": rawURL, "depth": depth, "queue_len": r.pq.Len()}).Trace("Queued")
}

// follow filters same-host links through the caller and queues the survivors
func (r *nativeRun) follow(links []string, depth int) {
	sameHost := make([]string, 0, len(links))
	for _, l := range links {
		u, err := url.Parse(l)
		if err == nil && parse.SameHost(u, r.seed) {
			sameHost = append(sameHost, l)
		}
	}
	for _, l := range r.hooks.filter(sameHost) {
		r.enqueue(l, depth)
	}
}

// processItem fetches one URL, queues what it links to and reports it
func (r *nativeRun) processItem(item models.WorkItem, workerLog *logrus.Entry) {
	taskLog := workerLog.WithFields(logrus.Fields{"url": item.URL, "depth": item.Depth})
	key, _, err := parse.ParseAndNormalize(item.URL)
	if err != nil {
		key = item.URL
	}
	entry := &models.PageDBEntry{Status: models.PageStatusFailure, Depth: item.Depth}

	defer func() {
		if rec := recover(); rec != nil {
			taskLog.WithFields(logrus.Fields{
				"panic_info":  rec,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered while processing page")
			entry.Status = models.PageStatusFailure
			entry.ErrorType = "Panic"
		}
		if entry.Status.IsTerminal() {
			entry.LastAttempt = time.Now()
			if err := r.store.UpdatePageStatus(key, entry); err != nil {
				taskLog.Warnf("Recording page status: %v", err)
			}
		}
		r.wg.Done()
	}()

	page, links, err := r.fetchPage(item, taskLog)
	if page == nil {
		// cancelled, or skipped by policy
		if errors.Is(err, utils.ErrRobotsDisallowed) {
			entry.Status = models.PageStatusSkipped
			entry.ErrorType = utils.CategorizeError(err)
		} else {
			entry.Status = models.PageStatusPending
		}
		return
	}

	entry.StatusCode = page.StatusCode
	switch {
	case page.Err != nil:
		entry.ErrorType = utils.CategorizeError(page.Err)
	case page.IsRedirect():
		entry.Status = models.PageStatusRedirect
	default:
		entry.Status = models.PageStatusSuccess
		entry.ProcessedAt = time.Now()
	}

	nextDepth := item.Depth + 1
	if page.IsRedirect() {
		nextDepth = item.Depth
	}
	if len(links) > 0 {
		r.follow(links, nextDepth)
	}

	if r.ctx.Err() != nil {
		return
	}
	r.fetched.Add(1)
	r.hooks.page(r.ctx, page)
}

// fetchPage performs the policy checks and the request for one item. A nil
// page means nothing should be reported: the crawl was cancelled or robots.txt
// disallowed the URL (err then wraps utils.ErrRobotsDisallowed). Otherwise the
// page is returned with the links it points at.
func (r *nativeRun) fetchPage(item models.WorkItem, taskLog *logrus.Entry) (*models.Page, []string, error) {
	page := &models.Page{URL: item.URL, Depth: item.Depth}
	fail := func(err error) (*models.Page, []string, error) {
		page.Err = fmt.Errorf("%w: %w", utils.ErrFetchFailure, err)
		return page, nil, nil
	}

	target, err := url.Parse(item.URL)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", utils.ErrParsing, err))
	}
	host := target.Host

	if r.opts.ObeyRobotsTxt && !r.robots.TestAgent(r.ctx, target) {
		taskLog.Info("Disallowed by robots.txt, skipping")
		return nil, nil, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, item.URL)
	}

	release, err := r.acquire(host)
	if err != nil {
		if r.ctx.Err() != nil {
			return nil, nil, r.ctx.Err()
		}
		return fail(err)
	}
	defer release()

	if err := r.rateLimiter.ApplyDelay(r.ctx, host, r.cfg.DelayPerHost); err != nil {
		return nil, nil, err
	}
	resp, err := r.fetcher.Get(r.ctx, item.URL)
	r.rateLimiter.UpdateLastRequestTime(host)
	if err != nil {
		if resp != nil {
			page.StatusCode = resp.StatusCode
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if r.ctx.Err() != nil {
			return nil, nil, r.ctx.Err()
		}
		taskLog.Debugf("Fetch failed: %v", err)
		return fail(err)
	}
	defer resp.Body.Close()
	page.StatusCode = resp.StatusCode

	if page.IsRedirect() {
		var links []string
		if loc, err := resp.Location(); err == nil {
			if abs, ok := parse.ResolveLink(target, loc.String()); ok {
				links = append(links, abs)
			}
		}
		taskLog.WithField("status_code", resp.StatusCode).Debug("Redirect response")
		return page, links, nil
	}

	if !isHTML(resp.Header.Get("Content-Type")) {
		return fail(fmt.Errorf("%w: content type '%s'", utils.ErrNotHTML, resp.Header.Get("Content-Type")))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxPageSizeBytes+1))
	if err != nil {
		return fail(fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err))
	}
	if int64(len(body)) > r.cfg.MaxPageSizeBytes {
		return fail(fmt.Errorf("%w: body exceeds %d bytes", utils.ErrResponseBodyRead, r.cfg.MaxPageSizeBytes))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("%w: %w", utils.ErrParsing, err))
	}
	doc.Url = target
	page.Doc = doc
	return page, parse.ExtractLinks(doc, target), nil
}

// acquire takes the per-host and global permits, each bounded by the
// semaphore timeout. The returned func releases whatever was taken.
func (r *nativeRun) acquire(host string) (func(), error) {
	timeout := r.cfg.SemaphoreAcquireTimeout

	hostCtx, cancelHost := context.WithTimeout(r.ctx, timeout)
	defer cancelHost()
	if err := r.hostSems.Acquire(hostCtx, host); err != nil {
		return func() {}, fmt.Errorf("%w: host semaphore for '%s': %w", utils.ErrSemaphoreTimeout, host, err)
	}

	globalCtx, cancelGlobal := context.WithTimeout(r.ctx, timeout)
	defer cancelGlobal()
	if err := r.globalSem.Acquire(globalCtx, 1); err != nil {
		r.hostSems.Release(host)
		return func() {}, fmt.Errorf("%w: global semaphore: %w", utils.ErrSemaphoreTimeout, err)
	}

	return func() {
		r.globalSem.Release(1)
		r.hostSems.Release(host)
	}, nil
}

// isHTML accepts HTML and XHTML media types; a missing header is given the
// benefit of the doubt
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
