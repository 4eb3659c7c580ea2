// Package crawler contains the fetch engines that drive a crawl.
//
// An engine owns traversal: it fetches pages, extracts their links, asks the
// caller which links to follow, and hands every fetched page to the caller
// one at a time. It knows nothing about text extraction or output.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/web2text/pkg/config"
	"github.com/Sriram-PR/web2text/pkg/models"
	"github.com/Sriram-PR/web2text/pkg/parse"
	"github.com/Sriram-PR/web2text/pkg/storage"
	"github.com/Sriram-PR/web2text/pkg/utils"
)

// Options are per-crawl switches passed by the caller
type Options struct {
	ObeyRobotsTxt bool
}

// Callbacks are the hooks an engine drives during a crawl
type Callbacks struct {
	// LinkFilter receives a page's discovered links (absolute, same host) and
	// returns the ones to follow. Nil follows all.
	LinkFilter func(links []string) []string

	// OnPage is called once per fetched URL, never concurrently
	OnPage func(ctx context.Context, page *models.Page)

	// OnCrawlEnd is called exactly once when the crawl stops, whether it ran
	// to completion, failed or was cancelled
	OnCrawlEnd func()
}

// Engine crawls from a seed URL
type Engine interface {
	Crawl(ctx context.Context, seedURL string, opts Options, cb Callbacks) error
}

// New returns the engine selected by cfg.Engine
func New(cfg *config.Config, log *logrus.Entry) (Engine, error) {
	switch cfg.Engine {
	case config.EngineNative, "":
		return NewNativeEngine(cfg, log), nil
	case config.EngineColly:
		return NewCollyEngine(cfg, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown engine '%s'", utils.ErrConfig, cfg.Engine)
	}
}

// hooks wraps Callbacks with the guarantees every engine owes its caller:
// serialized page delivery and a single end notification
type hooks struct {
	cb      Callbacks
	pageMu  sync.Mutex
	endOnce sync.Once
}

func newHooks(cb Callbacks) *hooks {
	return &hooks{cb: cb}
}

func (h *hooks) filter(links []string) []string {
	if h.cb.LinkFilter == nil || len(links) == 0 {
		return links
	}
	return h.cb.LinkFilter(links)
}

func (h *hooks) page(ctx context.Context, p *models.Page) {
	if h.cb.OnPage == nil {
		return
	}
	h.pageMu.Lock()
	defer h.pageMu.Unlock()
	h.cb.OnPage(ctx, p)
}

func (h *hooks) end() {
	h.endOnce.Do(func() {
		if h.cb.OnCrawlEnd != nil {
			h.cb.OnCrawlEnd()
		}
	})
}

// reportSeed warns when a crawl that ran to completion never produced a page
// for its seed, which otherwise looks like an empty site
func reportSeed(store storage.VisitedStore, seed *url.URL, log *logrus.Entry) {
	status, _, err := store.CheckPageStatus(parse.NormalizeURL(seed))
	switch {
	case err != nil:
		log.Warnf("Checking seed status: %v", err)
	case status == models.PageStatusSkipped:
		log.Warnf("Seed %s is disallowed by robots.txt; nothing was crawled", seed)
	case !status.IsTerminal():
		log.Warnf("Seed %s was never fetched (status %s)", seed, status)
	}
}
