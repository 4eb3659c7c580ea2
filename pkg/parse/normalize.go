// Package parse turns fetched documents into crawl input: normalized URL
// keys for deduplication and the outgoing links of a page.
package parse

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeURL returns the deduplication key for u: scheme and host
// lowercased, default ports dropped, an empty path turned into "/" and the
// fragment removed. The path is otherwise kept as-is, so "/docs" and
// "/docs/" are different pages. The query is kept because it usually
// selects different content. u is not modified.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)

	if host, port, err := net.SplitHostPort(n.Host); err == nil {
		if (n.Scheme == "http" && port == "80") || (n.Scheme == "https" && port == "443") {
			n.Host = host
		}
	}

	if n.Path == "" {
		n.Path = "/"
	}
	n.RawPath = ""
	n.Fragment = ""
	n.RawFragment = ""
	n.ForceQuery = false
	n.User = nil
	return n.String()
}

// ParseAndNormalize parses an absolute URL and returns its normalized key
// along with the parsed value
func ParseAndNormalize(rawURL string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}

// SameHost reports whether a and b name the same host, ignoring case and
// default ports
func SameHost(a, b *url.URL) bool {
	return hostKey(a) == hostKey(b)
}

func hostKey(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port == "" {
		return host
	}
	return host + ":" + port
}
