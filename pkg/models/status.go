package models

// PageStatus represents the processing status of a page in the visited store
type PageStatus string

const (
	PageStatusUnset    PageStatus = ""          // Zero value = unset/unknown
	PageStatusPending  PageStatus = "pending"   // Page queued but not fetched
	PageStatusSuccess  PageStatus = "success"   // Page fetched and parsed
	PageStatusRedirect PageStatus = "redirect"  // Response was a 3xx; target offered as a link
	PageStatusFailure  PageStatus = "failure"   // Fetch or parse failed
	PageStatusSkipped  PageStatus = "skipped"   // Disallowed by robots.txt
	PageStatusNotFound PageStatus = "not_found" // Page not in store
	PageStatusDBError  PageStatus = "db_error"  // Store error occurred
)

// String implements fmt.Stringer for logging
func (s PageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s PageStatus) IsValid() bool {
	switch s {
	case PageStatusPending, PageStatusSuccess, PageStatusRedirect, PageStatusFailure, PageStatusSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether a page in this status will not be fetched again
func (s PageStatus) IsTerminal() bool {
	switch s {
	case PageStatusSuccess, PageStatusRedirect, PageStatusFailure, PageStatusSkipped:
		return true
	}
	return false
}
