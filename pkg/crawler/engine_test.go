package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/web2text/pkg/config"
	"github.com/Sriram-PR/web2text/pkg/models"
	"github.com/Sriram-PR/web2text/pkg/utils"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testConfig(engine config.EngineKind) *config.Config {
	cfg := config.Default()
	cfg.Engine = engine
	cfg.NumWorkers = 3
	cfg.MaxRetries = 0
	cfg.HTTPClientSettings.Timeout = 5 * time.Second
	return cfg
}

// testSite serves a small site and counts requests per path
type testSite struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	site := &testSite{hits: make(map[string]int)}
	html := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body>%s</body></html>", body)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		html(w, `<h1>Home</h1>
			<a href="/a">A</a>
			<a href="/missing">Missing</a>
			<a href="/redir">Redirect</a>
			<a href="/skip/x">Skipped</a>
			<a href="/private/p">Private</a>
			<a href="http://other.invalid/">External</a>
			<a href="#top">Top</a>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<p>Page A</p><a href="/file.txt">file</a><a href="/">home</a>`)
	})
	mux.HandleFunc("/redir", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/c", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		html(w, `<p>Page C</p>`)
	})
	mux.HandleFunc("/file.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "plain text")
	})
	mux.HandleFunc("/skip/x", func(w http.ResponseWriter, r *http.Request) {
		html(w, "should never be fetched")
	})
	mux.HandleFunc("/private/p", func(w http.ResponseWriter, r *http.Request) {
		html(w, "private")
	})

	site.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.hits[r.URL.Path]++
		site.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(site.Close)
	return site
}

// recorder collects what an engine reports and checks that page callbacks
// are never concurrent
type recorder struct {
	mu       sync.Mutex
	pages    map[string]*models.Page
	inFlight atomic.Int32
	overlap  atomic.Bool
	ends     atomic.Int32
}

func newRecorder() *recorder {
	return &recorder{pages: make(map[string]*models.Page)}
}

func (rec *recorder) callbacks(base string) Callbacks {
	return Callbacks{
		LinkFilter: func(links []string) []string {
			var out []string
			for _, l := range links {
				if !strings.HasPrefix(l, base+"/skip") {
					out = append(out, l)
				}
			}
			return out
		},
		OnPage: func(ctx context.Context, page *models.Page) {
			if rec.inFlight.Add(1) > 1 {
				rec.overlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			rec.mu.Lock()
			rec.pages[strings.TrimPrefix(page.URL, base)] = page
			rec.mu.Unlock()
			rec.inFlight.Add(-1)
		},
		OnCrawlEnd: func() { rec.ends.Add(1) },
	}
}

func (rec *recorder) page(path string) *models.Page {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.pages[path]
}

func engines() map[string]func(*config.Config, *logrus.Entry) Engine {
	return map[string]func(*config.Config, *logrus.Entry) Engine{
		"native": func(cfg *config.Config, log *logrus.Entry) Engine { return NewNativeEngine(cfg, log) },
		"colly":  func(cfg *config.Config, log *logrus.Entry) Engine { return NewCollyEngine(cfg, log) },
	}
}

func TestEngines_CrawlSite(t *testing.T) {
	for name, newEngine := range engines() {
		t.Run(name, func(t *testing.T) {
			site := newTestSite(t)
			rec := newRecorder()
			engine := newEngine(testConfig(config.EngineKind(name)), testLogger())

			err := engine.Crawl(context.Background(), site.URL+"/", Options{ObeyRobotsTxt: true}, rec.callbacks(site.URL))
			require.NoError(t, err)

			assert.Equal(t, int32(1), rec.ends.Load(), "OnCrawlEnd exactly once")
			assert.False(t, rec.overlap.Load(), "OnPage must not run concurrently")

			home := rec.page("/")
			require.NotNil(t, home)
			require.NotNil(t, home.Doc)
			assert.Equal(t, 200, home.Code())
			assert.Equal(t, 0, home.Depth)

			a := rec.page("/a")
			require.NotNil(t, a)
			assert.NotNil(t, a.Doc)
			assert.Equal(t, 1, a.Depth)

			missing := rec.page("/missing")
			require.NotNil(t, missing)
			assert.Nil(t, missing.Doc)
			assert.Equal(t, http.StatusNotFound, missing.StatusCode)
			assert.ErrorIs(t, missing.Err, utils.ErrFetchFailure)

			redir := rec.page("/redir")
			require.NotNil(t, redir)
			assert.True(t, redir.IsRedirect())
			assert.Nil(t, redir.Doc)

			c := rec.page("/c")
			require.NotNil(t, c, "redirect target is crawled as its own page")
			assert.NotNil(t, c.Doc)

			file := rec.page("/file.txt")
			require.NotNil(t, file)
			assert.Nil(t, file.Doc)
			assert.ErrorIs(t, file.Err, utils.ErrFetchFailure)

			assert.Nil(t, rec.page("/skip/x"))
			assert.Zero(t, site.hitCount("/skip/x"), "filtered links are never requested")
			assert.Zero(t, site.hitCount("/private/p"), "robots.txt disallows /private")
			assert.Equal(t, 1, site.hitCount("/"), "pages are fetched once")
		})
	}
}

func TestEngines_IgnoreRobots(t *testing.T) {
	for name, newEngine := range engines() {
		t.Run(name, func(t *testing.T) {
			site := newTestSite(t)
			rec := newRecorder()
			engine := newEngine(testConfig(config.EngineKind(name)), testLogger())

			require.NoError(t, engine.Crawl(context.Background(), site.URL+"/", Options{ObeyRobotsTxt: false}, rec.callbacks(site.URL)))

			assert.NotNil(t, rec.page("/private/p"))
			assert.Zero(t, site.hitCount("/robots.txt"))
		})
	}
}

func TestEngines_MaxDepth(t *testing.T) {
	for name, newEngine := range engines() {
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			for i := 0; i < 4; i++ {
				next := fmt.Sprintf("/d%d", i+1)
				mux.HandleFunc(fmt.Sprintf("/d%d", i), func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "text/html")
					fmt.Fprintf(w, `<a href="%s">next</a>`, next)
				})
			}
			server := httptest.NewServer(mux)
			defer server.Close()

			cfg := testConfig(config.EngineKind(name))
			cfg.MaxDepth = 1
			rec := newRecorder()
			require.NoError(t, newEngine(cfg, testLogger()).Crawl(context.Background(), server.URL+"/d0", Options{}, rec.callbacks(server.URL)))

			assert.NotNil(t, rec.page("/d0"))
			assert.NotNil(t, rec.page("/d1"))
			assert.Nil(t, rec.page("/d2"))
		})
	}
}

func TestEngines_Cancellation(t *testing.T) {
	for name, newEngine := range engines() {
		t.Run(name, func(t *testing.T) {
			release := make(chan struct{})
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/" {
					w.Header().Set("Content-Type", "text/html")
					fmt.Fprint(w, `<a href="/slow1">1</a><a href="/slow2">2</a>`)
					return
				}
				select {
				case <-release:
				case <-r.Context().Done():
				}
			}))
			defer server.Close()
			defer close(release)

			ctx, cancel := context.WithCancel(context.Background())
			rec := newRecorder()
			cb := rec.callbacks(server.URL)
			onPage := cb.OnPage
			cb.OnPage = func(c context.Context, p *models.Page) {
				onPage(c, p)
				cancel()
			}

			done := make(chan error, 1)
			go func() {
				done <- newEngine(testConfig(config.EngineKind(name)), testLogger()).Crawl(ctx, server.URL+"/", Options{}, cb)
			}()

			select {
			case err := <-done:
				assert.ErrorIs(t, err, context.Canceled)
			case <-time.After(10 * time.Second):
				t.Fatal("crawl did not stop after cancellation")
			}
			assert.Equal(t, int32(1), rec.ends.Load())
			assert.Nil(t, rec.page("/slow1"))
		})
	}
}

func TestEngines_TrailingSlashRedirect(t *testing.T) {
	for name, newEngine := range engines() {
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/" {
					http.NotFound(w, r)
					return
				}
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprint(w, `<a href="/docs">Docs</a>`)
			})
			mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/docs/", http.StatusMovedPermanently)
			})
			mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprint(w, `<p>Docs index</p><a href="/docs">self</a>`)
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			rec := newRecorder()
			require.NoError(t, newEngine(testConfig(config.EngineKind(name)), testLogger()).Crawl(context.Background(), server.URL+"/", Options{}, rec.callbacks(server.URL)))

			redir := rec.page("/docs")
			require.NotNil(t, redir)
			assert.True(t, redir.IsRedirect())

			target := rec.page("/docs/")
			require.NotNil(t, target, "redirect target differing only by a trailing slash must be crawled")
			require.NotNil(t, target.Doc)
			assert.Contains(t, target.Doc.Text(), "Docs index")
		})
	}
}

func TestEngines_OversizedBody(t *testing.T) {
	for name, newEngine := range engines() {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				switch r.URL.Path {
				case "/":
					fmt.Fprint(w, `<a href="/big">big</a>`)
				case "/big":
					fmt.Fprintf(w, "<p>%s</p>", strings.Repeat("x", 500))
				default:
					http.NotFound(w, r)
				}
			}))
			defer server.Close()

			cfg := testConfig(config.EngineKind(name))
			cfg.MaxPageSizeBytes = 100
			rec := newRecorder()
			require.NoError(t, newEngine(cfg, testLogger()).Crawl(context.Background(), server.URL+"/", Options{}, rec.callbacks(server.URL)))

			home := rec.page("/")
			require.NotNil(t, home)
			assert.NotNil(t, home.Doc, "bodies within the limit are parsed")

			big := rec.page("/big")
			require.NotNil(t, big)
			assert.Nil(t, big.Doc, "oversized bodies are not parsed")
			assert.ErrorIs(t, big.Err, utils.ErrFetchFailure)
			assert.ErrorIs(t, big.Err, utils.ErrResponseBodyRead)
		})
	}
}

func TestEngines_SeedDisallowedByRobots(t *testing.T) {
	for name, newEngine := range engines() {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/robots.txt" {
					fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
					return
				}
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprint(w, "<p>hidden</p>")
			}))
			defer server.Close()

			var buf bytes.Buffer
			logger := logrus.New()
			logger.SetOutput(&buf)
			engine := newEngine(testConfig(config.EngineKind(name)), logrus.NewEntry(logger))

			rec := newRecorder()
			require.NoError(t, engine.Crawl(context.Background(), server.URL+"/", Options{ObeyRobotsTxt: true}, rec.callbacks(server.URL)))

			assert.Nil(t, rec.page("/"))
			assert.Equal(t, int32(1), rec.ends.Load())
			assert.Contains(t, buf.String(), "disallowed by robots.txt; nothing was crawled")
		})
	}
}

func TestEngines_InvalidSeed(t *testing.T) {
	for name, newEngine := range engines() {
		t.Run(name, func(t *testing.T) {
			rec := newRecorder()
			err := newEngine(testConfig(config.EngineKind(name)), testLogger()).Crawl(context.Background(), "not a url", Options{}, rec.callbacks(""))
			assert.ErrorIs(t, err, utils.ErrConfig)
			assert.Equal(t, int32(1), rec.ends.Load(), "OnCrawlEnd runs even when the crawl never starts")
		})
	}
}

func TestNativeEngine_MaxPages(t *testing.T) {
	site := newTestSite(t)
	cfg := testConfig(config.EngineNative)
	cfg.MaxPages = 2
	rec := newRecorder()

	require.NoError(t, NewNativeEngine(cfg, testLogger()).Crawl(context.Background(), site.URL+"/", Options{}, rec.callbacks(site.URL)))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.pages, 2)
}

func TestNew(t *testing.T) {
	cfg := config.Default()

	e, err := New(cfg, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &NativeEngine{}, e)

	cfg.Engine = config.EngineColly
	e, err = New(cfg, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &CollyEngine{}, e)

	cfg.Engine = "chromedp"
	_, err = New(cfg, testLogger())
	assert.ErrorIs(t, err, utils.ErrConfig)
}

func TestIsHTML(t *testing.T) {
	assert.True(t, isHTML(""))
	assert.True(t, isHTML("text/html"))
	assert.True(t, isHTML("text/html; charset=utf-8"))
	assert.True(t, isHTML("application/xhtml+xml"))
	assert.False(t, isHTML("text/plain"))
	assert.False(t, isHTML("application/json"))
}
