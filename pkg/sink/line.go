package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/Sriram-PR/web2text/pkg/utils"
)

// lineBreaks matches a run of line terminators together with the blanks around it
var lineBreaks = regexp.MustCompile(`[ \t]*(?:\r\n|[\n\r\x{2028}\x{2029}])[\s\x{2028}\x{2029}]*`)

// LineSink writes every page as one physical line to a single stream
type LineSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer // nil when the stream belongs to the caller
	closed bool
}

// NewLineSink writes to w. The caller keeps ownership of w; Close only flushes.
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: bufio.NewWriter(w)}
}

// NewLineFileSink creates (or truncates) path and owns the file until Close.
func NewLineFileSink(path string) (*LineSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create line output '%s': %w", utils.ErrFilesystem, path, err)
	}
	return &LineSink{w: bufio.NewWriter(f), closer: f}, nil
}

// Append writes text with its line breaks collapsed, followed by one newline.
func (s *LineSink) Append(text, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: line sink already closed", utils.ErrFilesystem)
	}
	if _, err := s.w.WriteString(SingleLine(text)); err != nil {
		return fmt.Errorf("%w: write line: %w", utils.ErrFilesystem, err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: write line: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// Close flushes buffered output and closes the stream if the sink opened it.
// Later calls are no-ops.
func (s *LineSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.w.Flush()
	var closeErr error
	if s.closer != nil {
		closeErr = s.closer.Close()
	}
	if flushErr != nil {
		return fmt.Errorf("%w: flush line output: %w", utils.ErrFilesystem, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close line output: %w", utils.ErrFilesystem, closeErr)
	}
	return nil
}

// SingleLine replaces every run of line breaks in text with one space
func SingleLine(text string) string {
	return strings.TrimSpace(lineBreaks.ReplaceAllString(text, " "))
}
