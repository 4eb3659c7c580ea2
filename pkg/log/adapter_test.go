package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newBufferedEntry(level logrus.Level) (*logrus.Entry, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return logrus.NewEntry(logger), &buf
}

func TestBadgerLogrusAdapter_Levels(t *testing.T) {
	entry, buf := newBufferedEntry(logrus.InfoLevel)
	adapter := NewBadgerLogrusAdapter(entry)

	adapter.Infof("compaction %d", 1)
	adapter.Debugf("noise")
	assert.Empty(t, buf.String(), "badger info and debug stay below info level")

	adapter.Warningf("slow %s", "write")
	assert.Contains(t, buf.String(), "level=warning")
	assert.Contains(t, buf.String(), "slow write")
	assert.Contains(t, buf.String(), "component=badger")

	buf.Reset()
	adapter.Errorf("broken")
	assert.Contains(t, buf.String(), "level=error")
}

func TestBadgerLogrusAdapter_DebugLevelShowsInfo(t *testing.T) {
	entry, buf := newBufferedEntry(logrus.DebugLevel)
	NewBadgerLogrusAdapter(entry).Infof("opened")
	assert.Contains(t, buf.String(), "opened")
}
