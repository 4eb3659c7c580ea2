package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, htmlStr string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	require.NoError(t, err)
	return doc
}

func TestNewTextExtractor_DefaultSelector(t *testing.T) {
	assert.Equal(t, "body", NewTextExtractor("").Selector())
	assert.Equal(t, "body", NewTextExtractor("   ").Selector())
	assert.Equal(t, "main", NewTextExtractor("main").Selector())
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		html     string
		expected string
	}{
		{
			name:     "nested inline elements",
			selector: "body",
			html:     `<html><body><p>Hello <b>bold <i>world</i></b>!</p></body></html>`,
			expected: "Hello bold world!",
		},
		{
			name:     "block boundaries become spaces",
			selector: "body",
			html:     `<body><h1>Title</h1><p>First</p><p>Second<br>line</p><ul><li>a</li><li>b</li></ul></body>`,
			expected: "Title First Second line a b",
		},
		{
			name:     "scripts and styles excluded",
			selector: "body",
			html: `<html><head><title>T</title><style>p{}</style></head>
<body><script>var x = 1;</script><p>Visible</p><noscript>enable js</noscript><style>.a{}</style></body></html>`,
			expected: "Visible",
		},
		{
			name:     "whitespace collapsed",
			selector: "body",
			html:     "<body>\n\n  <div>  lots   of\n\t space  </div>\n</body>",
			expected: "lots of space",
		},
		{
			name:     "multiple matches joined by newline",
			selector: "article",
			html:     `<body><article>One <em>a</em></article><div>skip</div><article>Two</article></body>`,
			expected: "One a\nTwo",
		},
		{
			name:     "empty matches dropped",
			selector: "section",
			html:     `<body><section> </section><section>Only</section></body>`,
			expected: "Only",
		},
		{
			name:     "no match yields empty string",
			selector: "#missing",
			html:     `<body><p>text</p></body>`,
			expected: "",
		},
		{
			name:     "comments ignored",
			selector: "body",
			html:     `<body>a<!-- hidden -->b</body>`,
			expected: "ab",
		},
		{
			name:     "entities decoded",
			selector: "body",
			html:     `<body><p>Fish &amp; chips &lt;3</p></body>`,
			expected: "Fish & chips <3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseDoc(t, tt.html)
			got := NewTextExtractor(tt.selector).Extract(doc)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExtract_NilDocument(t *testing.T) {
	assert.Equal(t, "", NewTextExtractor("body").Extract(nil))
}

func TestExtract_IsPure(t *testing.T) {
	doc := parseDoc(t, `<body><p>same</p></body>`)
	e := NewTextExtractor("body")
	assert.Equal(t, e.Extract(doc), e.Extract(doc))
	assert.Equal(t, 1, doc.Find("p").Length())
}
