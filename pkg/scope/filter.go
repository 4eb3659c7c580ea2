// Package scope decides which URLs a crawl follows and which pages it keeps.
//
// Rules are URL prefixes. Avoid rules prune links before they are queued;
// focus rules select the fetched pages whose text is extracted. Matching is a
// literal string prefix test on the fully resolved URL, so the rule
// "https://h/ab" also matches "https://h/abc". Callers that need a path
// boundary should end the rule with "/".
package scope

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Sriram-PR/web2text/pkg/utils"
)

// Filter holds the resolved avoid and focus rules for one crawl.
// It is immutable after New and safe for concurrent use.
type Filter struct {
	seed  string
	avoid []string
	focus []string
}

// New resolves raw avoid and focus rules against seedURL.
// A rule that already starts with seedURL is kept as is; any other rule is
// joined to seedURL with standard relative-reference resolution, so "/a/b"
// on "https://host/x" becomes "https://host/a/b".
func New(seedURL string, avoid, focus []string) (*Filter, error) {
	base, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid seed URL '%s': %v", utils.ErrConfig, seedURL, err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("%w: seed URL '%s' is not absolute", utils.ErrConfig, seedURL)
	}

	f := &Filter{seed: seedURL}
	if f.avoid, err = resolveRules(base, seedURL, avoid, "avoid"); err != nil {
		return nil, err
	}
	if f.focus, err = resolveRules(base, seedURL, focus, "focus"); err != nil {
		return nil, err
	}
	return f, nil
}

func resolveRules(base *url.URL, seedURL string, raw []string, kind string) ([]string, error) {
	resolved := make([]string, 0, len(raw))
	for _, r := range raw {
		if strings.HasPrefix(r, seedURL) {
			resolved = append(resolved, r)
			continue
		}
		ref, err := url.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed %s rule '%s': %v", utils.ErrConfig, kind, r, err)
		}
		resolved = append(resolved, base.ResolveReference(ref).String())
	}
	return resolved, nil
}

// Skip reports whether u starts with any avoid rule.
func (f *Filter) Skip(u string) bool {
	return hasAnyPrefix(u, f.avoid)
}

// Focus reports whether the page at u should be processed: true when no focus
// rules are configured, otherwise only when u starts with one of them.
func (f *Filter) Focus(u string) bool {
	if len(f.focus) == 0 {
		return true
	}
	return hasAnyPrefix(u, f.focus)
}

// Filter returns the URLs that Skip does not reject, in input order.
func (f *Filter) Filter(urls []string) []string {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if !f.Skip(u) {
			kept = append(kept, u)
		}
	}
	return kept
}

// Seed returns the seed URL the rules were resolved against.
func (f *Filter) Seed() string { return f.seed }

// AvoidRules returns a copy of the resolved avoid rules.
func (f *Filter) AvoidRules() []string { return append([]string(nil), f.avoid...) }

// FocusRules returns a copy of the resolved focus rules.
func (f *Filter) FocusRules() []string { return append([]string(nil), f.focus...) }

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
