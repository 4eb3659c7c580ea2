// Package storage keeps the crawl's visited set.
//
// The set lives in BadgerDB, in memory by default. A state directory may be
// given for very large crawls; it is scratch space only, wiped on open and
// removed on close, since a crawl never resumes from a previous run.
package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/web2text/pkg/log"
	"github.com/Sriram-PR/web2text/pkg/models"
	"github.com/Sriram-PR/web2text/pkg/utils"
)

const (
	pageKeyPrefix = "page:"
	visitedDBDir  = "visited_db"
)

const maxConflictRetries = 10

// BadgerStore implements VisitedStore on BadgerDB
type BadgerStore struct {
	db       *badger.DB
	dbPath   string // empty for in-memory stores
	log      *logrus.Entry
	keyCount atomic.Int64
}

// NewBadgerStore opens a fresh visited store. With an empty stateDir the
// database is held in memory; otherwise it lives under
// <stateDir>/<crawlID>_visited_db.
func NewBadgerStore(stateDir, crawlID string, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger}
	badgerLog := log.NewBadgerLogrusAdapter(logger)

	var opts badger.Options
	if stateDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
		logger.Debug("Opening in-memory visited store")
	} else {
		store.dbPath = filepath.Join(stateDir, utils.SanitizeFilename(crawlID)+"_"+visitedDBDir)
		if err := os.RemoveAll(store.dbPath); err != nil {
			return nil, fmt.Errorf("%w: clear state directory '%s': %w", utils.ErrFilesystem, store.dbPath, err)
		}
		if err := os.MkdirAll(store.dbPath, 0755); err != nil {
			return nil, fmt.Errorf("%w: create state directory '%s': %w", utils.ErrFilesystem, store.dbPath, err)
		}
		opts = badger.DefaultOptions(store.dbPath)
		logger.Infof("Opening visited store at: %s", store.dbPath)
	}
	opts = opts.WithLogger(badgerLog).WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open visited store: %w", utils.ErrDatabase, err)
	}
	store.db = db
	return store, nil
}

// dbUpdate retries db.Update on transaction conflicts, which concurrent
// workers touching the same key can trigger
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("Transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// MarkPageVisited implements VisitedStore
func (s *BadgerStore) MarkPageVisited(normalizedPageURL string) (bool, error) {
	key := []byte(pageKeyPrefix + normalizedPageURL)
	added := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		added = false
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			if err := txn.Set(key, []byte{}); err != nil {
				return err
			}
			added = true
			return nil
		}
		return errGet
	})
	if err != nil {
		return false, fmt.Errorf("%w: mark '%s': %w", utils.ErrDatabase, normalizedPageURL, err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// CheckPageStatus implements VisitedStore
func (s *BadgerStore) CheckPageStatus(normalizedPageURL string) (models.PageStatus, *models.PageDBEntry, error) {
	key := []byte(pageKeyPrefix + normalizedPageURL)
	status := models.PageStatusNotFound
	var entry *models.PageDBEntry

	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				status = models.PageStatusPending
				return nil
			}
			var decoded models.PageDBEntry
			if err := json.Unmarshal(val, &decoded); err != nil {
				s.log.Warnf("Undecodable entry for '%s', treating as pending: %v", normalizedPageURL, err)
				status = models.PageStatusPending
				return nil
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})
	if err != nil {
		return models.PageStatusDBError, nil, fmt.Errorf("%w: read '%s': %w", utils.ErrDatabase, normalizedPageURL, err)
	}
	return status, entry, nil
}

// UpdatePageStatus implements VisitedStore
func (s *BadgerStore) UpdatePageStatus(normalizedPageURL string, entry *models.PageDBEntry) error {
	if entry == nil || !entry.Status.IsValid() {
		return fmt.Errorf("%w: refusing to record invalid status for '%s'", utils.ErrDatabase, normalizedPageURL)
	}
	key := []byte(pageKeyPrefix + normalizedPageURL)
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encode entry for '%s': %w", utils.ErrParsing, normalizedPageURL, err)
	}

	isNew := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.Set(key, val)
	})
	if err != nil {
		return fmt.Errorf("%w: update '%s': %w", utils.ErrDatabase, normalizedPageURL, err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return nil
}

// GetVisitedCount implements VisitedStore
func (s *BadgerStore) GetVisitedCount() int {
	return int(s.keyCount.Load())
}

// WriteVisitedLog implements VisitedStore. Each line is "<url>\t<status>",
// in key order.
func (s *BadgerStore) WriteVisitedLog(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("%w: create visited log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	written := 0
	prefix := []byte(pageKeyPrefix)

	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			pageURL := string(item.Key()[len(prefix):])
			status := models.PageStatusPending
			if err := item.Value(func(val []byte) error {
				var e models.PageDBEntry
				if len(val) > 0 && json.Unmarshal(val, &e) == nil {
					status = e.Status
				}
				return nil
			}); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\n", pageURL, status); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: write visited log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: flush visited log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	s.log.Infof("Wrote %d URLs to visited log: %s", written, filePath)
	return nil
}

// Close implements VisitedStore. An on-disk store's directory is removed.
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close visited store: %w", utils.ErrDatabase, err)
	}
	if s.dbPath != "" {
		if err := os.RemoveAll(s.dbPath); err != nil {
			s.log.Warnf("Could not remove state directory '%s': %v", s.dbPath, err)
		}
	}
	return nil
}
