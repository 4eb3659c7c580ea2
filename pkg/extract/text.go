// Package extract turns the selected parts of a parsed HTML document into
// plain text.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skippedElements never contribute text
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
}

// blockElements separate the text on either side of them with whitespace
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Details: true, atom.Div: true, atom.Dl: true,
	atom.Dt: true, atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true,
	atom.Footer: true, atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true,
	atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true,
	atom.Pre: true, atom.Section: true, atom.Summary: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true, atom.Caption: true,
	atom.Tbody: true, atom.Thead: true, atom.Tfoot: true, atom.Option: true,
}

// TextExtractor extracts readable text from the elements matching a CSS selector
type TextExtractor struct {
	selector string
}

// NewTextExtractor creates an extractor for selector; an empty selector means "body"
func NewTextExtractor(selector string) *TextExtractor {
	if strings.TrimSpace(selector) == "" {
		selector = "body"
	}
	return &TextExtractor{selector: selector}
}

// Selector returns the CSS selector in use
func (e *TextExtractor) Selector() string { return e.selector }

// Extract returns the text of every element matching the selector, one match
// per line. Within a match, whitespace runs collapse to a single space.
// No match (or only empty matches) yields "".
func (e *TextExtractor) Extract(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	var parts []string
	doc.Find(e.selector).Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			if text := NodeText(n); text != "" {
				parts = append(parts, text)
			}
		}
	})
	return strings.Join(parts, "\n")
}

// NodeText flattens the text below n into a single whitespace-collapsed string
func NodeText(n *html.Node) string {
	var b strings.Builder
	collectText(n, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
	if block {
		b.WriteByte(' ')
	}
}
