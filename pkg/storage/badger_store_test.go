package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/web2text/pkg/models"
	"github.com/Sriram-PR/web2text/pkg/utils"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newMemStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore("", "test", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStore_MarkPageVisited(t *testing.T) {
	store := newMemStore(t)

	added, err := store.MarkPageVisited("https://example.com/a")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.MarkPageVisited("https://example.com/a")
	require.NoError(t, err)
	assert.False(t, added, "second claim of the same URL must fail")

	added, err = store.MarkPageVisited("https://example.com/b")
	require.NoError(t, err)
	assert.True(t, added)

	assert.Equal(t, 2, store.GetVisitedCount())
}

func TestBadgerStore_StatusLifecycle(t *testing.T) {
	store := newMemStore(t)
	key := "https://example.com/page"

	status, entry, err := store.CheckPageStatus(key)
	require.NoError(t, err)
	assert.Equal(t, models.PageStatusNotFound, status)
	assert.Nil(t, entry)

	_, err = store.MarkPageVisited(key)
	require.NoError(t, err)
	status, _, err = store.CheckPageStatus(key)
	require.NoError(t, err)
	assert.Equal(t, models.PageStatusPending, status)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.UpdatePageStatus(key, &models.PageDBEntry{
		Status:      models.PageStatusFailure,
		ErrorType:   "HTTP_404",
		StatusCode:  404,
		LastAttempt: now,
		Depth:       2,
	}))

	status, entry, err = store.CheckPageStatus(key)
	require.NoError(t, err)
	assert.Equal(t, models.PageStatusFailure, status)
	require.NotNil(t, entry)
	assert.Equal(t, "HTTP_404", entry.ErrorType)
	assert.Equal(t, 404, entry.StatusCode)
	assert.Equal(t, 2, entry.Depth)
	assert.Equal(t, 1, store.GetVisitedCount(), "update of a claimed URL does not add a key")
}

func TestBadgerStore_UpdateUnclaimedCounts(t *testing.T) {
	store := newMemStore(t)
	require.NoError(t, store.UpdatePageStatus("https://example.com/x", &models.PageDBEntry{Status: models.PageStatusSuccess}))
	assert.Equal(t, 1, store.GetVisitedCount())
}

func TestBadgerStore_UpdateRejectsInvalidStatus(t *testing.T) {
	store := newMemStore(t)
	for _, entry := range []*models.PageDBEntry{
		nil,
		{Status: models.PageStatusUnset},
		{Status: models.PageStatusNotFound},
		{Status: models.PageStatus("bogus")},
	} {
		err := store.UpdatePageStatus("https://example.com/x", entry)
		assert.ErrorIs(t, err, utils.ErrDatabase)
	}
	status, _, err := store.CheckPageStatus("https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, models.PageStatusNotFound, status)
}

func TestBadgerStore_ConcurrentMark(t *testing.T) {
	store := newMemStore(t)
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := store.MarkPageVisited("https://example.com/contended")
			if err == nil && added {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load(), "exactly one goroutine claims the URL")
}

func TestBadgerStore_WriteVisitedLog(t *testing.T) {
	store := newMemStore(t)
	for i, s := range []models.PageStatus{models.PageStatusSuccess, models.PageStatusRedirect} {
		key := fmt.Sprintf("https://example.com/%d", i)
		_, err := store.MarkPageVisited(key)
		require.NoError(t, err)
		require.NoError(t, store.UpdatePageStatus(key, &models.PageDBEntry{Status: s}))
	}
	_, err := store.MarkPageVisited("https://example.com/2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "visited.txt")
	require.NoError(t, store.WriteVisitedLog(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{
		"https://example.com/0\tsuccess",
		"https://example.com/1\tredirect",
		"https://example.com/2\tpending",
	}, lines)
}

func TestBadgerStore_OnDiskScratch(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBadgerStore(dir, "run-1", testLogger())
	require.NoError(t, err)

	dbPath := filepath.Join(dir, "run-1_visited_db")
	assert.DirExists(t, dbPath)

	_, err = store.MarkPageVisited("https://example.com/")
	require.NoError(t, err)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "second close is a no-op")
	assert.NoDirExists(t, dbPath, "scratch state is removed on close")
}
