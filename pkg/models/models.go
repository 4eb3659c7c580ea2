package models

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// WorkItem represents a URL and its depth to be processed by a worker
type WorkItem struct {
	URL   string
	Depth int
}

// PageDBEntry stores the result of fetching a page URL in the visited store
type PageDBEntry struct {
	Status      PageStatus `json:"status"`
	ErrorType   string     `json:"error_type,omitempty"`   // Error category (on failure)
	StatusCode  int        `json:"status_code,omitempty"`  // HTTP status of the last response
	ProcessedAt time.Time  `json:"processed_at,omitempty"` // Timestamp of successful fetch
	LastAttempt time.Time  `json:"last_attempt"`
	Depth       int        `json:"depth"`
}

// Page is what a fetch engine hands to the page callback: one fetched (or
// failed) URL. Doc is nil when the body could not be retrieved or parsed;
// Err then carries the reason.
type Page struct {
	URL        string
	StatusCode int
	Doc        *goquery.Document
	Err        error
	Depth      int
}

// Code returns the HTTP status, treating an unknown (zero) status as 200
func (p *Page) Code() int {
	if p.StatusCode == 0 {
		return 200
	}
	return p.StatusCode
}

// IsRedirect reports whether the response was a 3xx
func (p *Page) IsRedirect() bool {
	c := p.Code()
	return c >= 300 && c < 400
}
