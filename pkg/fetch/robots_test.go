package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			w.WriteHeader(status)
			w.Write([]byte(body))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, hits
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRobotsHandler_TestAgent(t *testing.T) {
	server, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private/\n")
	rh := NewRobotsHandler(testFetcher(0), nil, nil, "web2text-test", testLogger())
	ctx := context.Background()

	assert.True(t, rh.TestAgent(ctx, mustParse(t, server.URL+"/docs/page")))
	assert.False(t, rh.TestAgent(ctx, mustParse(t, server.URL+"/private/secret")))
	assert.True(t, rh.TestAgent(ctx, mustParse(t, server.URL+"/")))
	assert.Equal(t, int32(1), hits.Load(), "robots.txt is fetched once per host")
}

func TestRobotsHandler_MissingFileAllowsAll(t *testing.T) {
	server, _ := robotsServer(t, http.StatusNotFound, "")
	rl := NewRateLimiter(0, testLogger())
	pool := NewHostSemaphorePool(1, testLogger())
	rh := NewRobotsHandler(testFetcher(0), rl, pool, "web2text-test", testLogger())

	u := mustParse(t, server.URL+"/anything")
	assert.Nil(t, rh.GetRobotsData(context.Background(), u))
	assert.True(t, rh.TestAgent(context.Background(), u))
}

func TestRobotsHandler_AgentSpecificRules(t *testing.T) {
	body := "User-agent: web2text-test\nDisallow: /\n\nUser-agent: *\nAllow: /\n"
	server, _ := robotsServer(t, http.StatusOK, body)
	rh := NewRobotsHandler(testFetcher(0), nil, nil, "web2text-test", testLogger())

	assert.False(t, rh.TestAgent(context.Background(), mustParse(t, server.URL+"/page")))
}
