package sink

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/web2text/pkg/utils"
)

// TreeSink writes each page to its own file under a base directory, at a
// path derived from the page URL's path
type TreeSink struct {
	baseDir      string
	fallbackName string
	log          *logrus.Entry
}

// NewTreeSink prepares baseDir, creating it if needed. It fails with
// utils.ErrConfig when baseDir exists and is not a directory.
func NewTreeSink(baseDir, fallbackName string, log *logrus.Entry) (*TreeSink, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: output directory is empty", utils.ErrConfig)
	}
	if fallbackName == "" {
		fallbackName = "index"
	}
	info, err := os.Stat(baseDir)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("%w: output target '%s' must be a directory", utils.ErrConfig, baseDir)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: inspect output directory '%s': %w", utils.ErrFilesystem, baseDir, err)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create output directory '%s': %w", utils.ErrFilesystem, baseDir, err)
	}
	return &TreeSink{baseDir: baseDir, fallbackName: fallbackName, log: log}, nil
}

// PathFor maps a page URL to its file: "/a/b" -> <base>/a/b, and an empty
// path or one ending in "/" gets the fallback name appended.
func (s *TreeSink) PathFor(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("%w: page URL '%s': %w", utils.ErrParsing, pageURL, err)
	}
	p := u.Path
	segments := utils.SanitizePathSegments(p)
	if p == "" || p[len(p)-1] == '/' || len(segments) == 0 {
		segments = append(segments, s.fallbackName)
	}
	return filepath.Join(append([]string{s.baseDir}, segments...)...), nil
}

// Append writes text as the full contents of the page's file, creating
// intermediate directories. An existing file is overwritten. If the derived
// path is already a directory the page goes to <path>/<fallback>.
func (s *TreeSink) Append(text, pageURL string) error {
	target, err := s.PathFor(pageURL)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
		target = filepath.Join(target, s.fallbackName)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("%w: create directory for '%s': %w", utils.ErrFilesystem, pageURL, err)
	}
	if err := os.WriteFile(target, []byte(text), 0644); err != nil {
		return fmt.Errorf("%w: write '%s': %w", utils.ErrFilesystem, target, err)
	}
	s.log.WithFields(logrus.Fields{"url": pageURL, "path": target}).Debug("Wrote page file")
	return nil
}

// Close is a no-op; every file is closed inside Append.
func (s *TreeSink) Close() error { return nil }
