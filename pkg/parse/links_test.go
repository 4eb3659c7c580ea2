package parse

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	html := `<html><body>
		<a href="/docs/intro">Intro</a>
		<a href="guide#setup">Guide</a>
		<a href="https://other.example/x">External</a>
		<a href="mailto:me@example.com">Mail</a>
		<a href="javascript:void(0)">JS</a>
		<a href="#top">Top</a>
		<a href="">Empty</a>
		<a href="/docs/intro#again">Duplicate</a>
		<a>No href</a>
		<a href="  /spaced  ">Spaced</a>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	base, _ := url.Parse("https://example.com/docs/start")

	links := ExtractLinks(doc, base)
	assert.Equal(t, []string{
		"https://example.com/docs/intro",
		"https://example.com/docs/guide",
		"https://other.example/x",
		"https://example.com/spaced",
	}, links)
}

func TestExtractLinks_NilInputs(t *testing.T) {
	assert.Nil(t, ExtractLinks(nil, &url.URL{}))
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader("<a href='/x'>x</a>"))
	assert.Nil(t, ExtractLinks(doc, nil))
}

func TestResolveLink(t *testing.T) {
	base, _ := url.Parse("https://example.com/a/b")
	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"c", "https://example.com/a/c", true},
		{"../up", "https://example.com/up", true},
		{"//cdn.example.com/lib", "https://cdn.example.com/lib", true},
		{"/abs?q=1#f", "https://example.com/abs?q=1", true},
		{"ftp://example.com/file", "", false},
		{"#frag", "", false},
		{"   ", "", false},
		{"http://[::1", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveLink(base, tt.href)
		assert.Equal(t, tt.ok, ok, tt.href)
		assert.Equal(t, tt.want, got, tt.href)
	}
}
