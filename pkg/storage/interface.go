package storage

import "github.com/Sriram-PR/web2text/pkg/models"

// VisitedStore tracks which page URLs a crawl has claimed and what became of
// them. Keys are normalized URLs. Implementations are safe for concurrent use.
type VisitedStore interface {
	// MarkPageVisited claims a URL in pending state. It returns true only for
	// the first caller; later calls for the same URL return false.
	MarkPageVisited(normalizedPageURL string) (bool, error)

	// CheckPageStatus returns the recorded status and entry for a URL.
	// Unknown URLs yield PageStatusNotFound and a nil entry.
	CheckPageStatus(normalizedPageURL string) (models.PageStatus, *models.PageDBEntry, error)

	// UpdatePageStatus records the outcome of fetching a URL
	UpdatePageStatus(normalizedPageURL string, entry *models.PageDBEntry) error

	// GetVisitedCount returns the number of URLs claimed so far
	GetVisitedCount() int

	// WriteVisitedLog writes every claimed URL and its status to filePath
	WriteVisitedLog(filePath string) error

	// Close releases the store
	Close() error
}
