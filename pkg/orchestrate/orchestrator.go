// Package orchestrate wires a fetch engine to text extraction and output.
//
// The orchestrator owns no loop and no queue. It hands three hooks to an
// engine (a link filter, a page handler and an end-of-crawl handler) and
// decides, per page, whether text is extracted and written.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/web2text/pkg/crawler"
	"github.com/Sriram-PR/web2text/pkg/models"
	"github.com/Sriram-PR/web2text/pkg/sink"
	"github.com/Sriram-PR/web2text/pkg/utils"
)

// Scope is the part of scope.Filter the orchestrator needs
type Scope interface {
	Filter(urls []string) []string
	Focus(url string) bool
}

// Extractor turns a parsed page into plain text
type Extractor interface {
	Extract(doc *goquery.Document) string
}

// Outcome is what happened to one page
type Outcome int

const (
	OutcomeProcessed    Outcome = iota // Text extracted and written
	OutcomeRedirectSkip                // 3xx response, nothing written
	OutcomeOutOfFocus                  // Outside every focus rule, nothing written
	OutcomeFetchFailed                 // No document; logged
	OutcomeWriteFailed                 // Sink rejected the text; logged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeRedirectSkip:
		return "redirect_skip"
	case OutcomeOutOfFocus:
		return "out_of_focus"
	case OutcomeFetchFailed:
		return "fetch_failed"
	case OutcomeWriteFailed:
		return "write_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Stats counts page outcomes
type Stats struct {
	Processed    int
	RedirectSkip int
	OutOfFocus   int
	FetchFailed  int
	WriteFailed  int
}

// Total is the number of pages handled
func (s Stats) Total() int {
	return s.Processed + s.RedirectSkip + s.OutOfFocus + s.FetchFailed + s.WriteFailed
}

// Params configures an Orchestrator
type Params struct {
	Filter        Scope
	Extractor     Extractor
	Sink          sink.Sink
	Delay         time.Duration // pause after each page that reached the sink
	ObeyRobotsTxt bool
	SeedURL       string
	Log           *logrus.Entry
}

// Orchestrator connects an engine's callbacks to extraction and output
type Orchestrator struct {
	p     Params
	log   *logrus.Entry
	start time.Time

	mu      sync.Mutex // serializes HandlePage
	statsMu sync.Mutex
	stats   Stats

	closeOnce sync.Once
	closeErr  error
}

// New validates p and returns an Orchestrator. Every log entry it writes
// carries a fresh crawl_id.
func New(p Params) (*Orchestrator, error) {
	switch {
	case p.Filter == nil:
		return nil, fmt.Errorf("%w: orchestrator needs a scope filter", utils.ErrConfig)
	case p.Extractor == nil:
		return nil, fmt.Errorf("%w: orchestrator needs an extractor", utils.ErrConfig)
	case p.Sink == nil:
		return nil, fmt.Errorf("%w: orchestrator needs a sink", utils.ErrConfig)
	case p.SeedURL == "":
		return nil, fmt.Errorf("%w: orchestrator needs a seed URL", utils.ErrConfig)
	}
	if p.Log == nil {
		p.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		p:     p,
		log:   p.Log.WithFields(logrus.Fields{"component": "orchestrator", "crawl_id": uuid.NewString()}),
		start: time.Now(),
	}, nil
}

// FilterLinks drops links matching an avoid rule, keeping order
func (o *Orchestrator) FilterLinks(links []string) []string {
	return o.p.Filter.Filter(links)
}

// HandlePage decides what to do with one fetched page and does it. Calls are
// serialized; after a page reaches the sink it waits for the configured delay
// or until ctx is cancelled.
func (o *Orchestrator) HandlePage(ctx context.Context, page *models.Page) Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()

	pageLog := o.log.WithFields(logrus.Fields{"url": page.URL, "status_code": page.Code()})
	pageLog.Info("Page fetched")

	outcome := o.handle(page, pageLog)
	o.count(outcome)

	if outcome == OutcomeProcessed || outcome == OutcomeWriteFailed {
		o.pause(ctx)
	}
	return outcome
}

func (o *Orchestrator) handle(page *models.Page, pageLog *logrus.Entry) Outcome {
	if page.IsRedirect() {
		return OutcomeRedirectSkip
	}
	if !o.p.Filter.Focus(page.URL) {
		return OutcomeOutOfFocus
	}
	if page.Doc == nil {
		err := page.Err
		if err == nil {
			err = utils.ErrFetchFailure
		}
		pageLog.WithField("category", utils.CategorizeError(err)).Errorf("ERR: Failed to retrieve %s: %v", page.URL, err)
		return OutcomeFetchFailed
	}

	text := o.p.Extractor.Extract(page.Doc)
	if err := o.p.Sink.Append(text, page.URL); err != nil {
		pageLog.WithField("category", utils.CategorizeError(err)).Errorf("Failed to write page: %v", err)
		return OutcomeWriteFailed
	}
	pageLog.WithField("chars", len(text)).Debug("Page written")
	return OutcomeProcessed
}

func (o *Orchestrator) count(outcome Outcome) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	switch outcome {
	case OutcomeProcessed:
		o.stats.Processed++
	case OutcomeRedirectSkip:
		o.stats.RedirectSkip++
	case OutcomeOutOfFocus:
		o.stats.OutOfFocus++
	case OutcomeFetchFailed:
		o.stats.FetchFailed++
	case OutcomeWriteFailed:
		o.stats.WriteFailed++
	}
}

func (o *Orchestrator) pause(ctx context.Context) {
	if o.p.Delay <= 0 {
		return
	}
	timer := time.NewTimer(o.p.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// CrawlEnd closes the sink and logs a summary. Only the first call does
// anything; later calls return the first call's error.
func (o *Orchestrator) CrawlEnd() error {
	o.closeOnce.Do(func() {
		o.closeErr = o.p.Sink.Close()
		if o.closeErr != nil {
			o.log.Errorf("Closing output: %v", o.closeErr)
		}
		st := o.Stats()
		o.log.WithFields(logrus.Fields{
			"duration":     time.Since(o.start).Round(time.Millisecond).String(),
			"pages":        st.Total(),
			"processed":    st.Processed,
			"redirects":    st.RedirectSkip,
			"out_of_focus": st.OutOfFocus,
			"fetch_failed": st.FetchFailed,
			"write_failed": st.WriteFailed,
		}).Info("Crawl complete")
	})
	return o.closeErr
}

// Run crawls with engine until it finishes. The sink is closed exactly once
// however the crawl ends. A cancelled crawl returns the context error.
func (o *Orchestrator) Run(ctx context.Context, engine crawler.Engine) (err error) {
	o.start = time.Now()
	defer func() {
		if closeErr := o.CrawlEnd(); err == nil {
			err = closeErr
		}
	}()

	err = engine.Crawl(ctx, o.p.SeedURL, crawler.Options{ObeyRobotsTxt: o.p.ObeyRobotsTxt}, crawler.Callbacks{
		LinkFilter: o.FilterLinks,
		OnPage: func(ctx context.Context, page *models.Page) {
			o.HandlePage(ctx, page)
		},
		OnCrawlEnd: func() { o.CrawlEnd() },
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		o.log.Warnf("Crawl stopped early: %v", err)
	}
	return err
}

// Stats returns a snapshot of the outcome counters
func (o *Orchestrator) Stats() Stats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return o.stats
}
