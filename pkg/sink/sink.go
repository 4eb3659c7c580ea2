// Package sink persists extracted page text.
//
// Two variants exist: LineSink writes one line per page to a single stream,
// TreeSink writes one file per page under a base directory that mirrors the
// site's URL paths. The variant is chosen once at startup.
package sink

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/web2text/pkg/config"
	"github.com/Sriram-PR/web2text/pkg/utils"
)

// Sink consumes (text, url) pairs. Append is called at most once per page in
// processing order and must not be called concurrently; Close is called once
// after the last Append.
type Sink interface {
	Append(text, pageURL string) error
	Close() error
}

// New builds the sink described by out. For line output without a path the
// sink writes to stdout and never closes it.
func New(out config.OutputConfig, fallbackName string, stdout io.Writer, log *logrus.Entry) (Sink, error) {
	switch out.Mode {
	case config.OutputLines, "":
		if out.Path == "" || out.Path == "-" {
			log.Debug("Line output to stdout")
			return NewLineSink(stdout), nil
		}
		log.Infof("Line output to file: %s", out.Path)
		return NewLineFileSink(out.Path)
	case config.OutputFiles:
		log.Infof("File-per-page output under: %s", out.Path)
		return NewTreeSink(out.Path, fallbackName, log)
	default:
		return nil, fmt.Errorf("%w: unknown output mode '%s'", utils.ErrConfig, out.Mode)
	}
}
