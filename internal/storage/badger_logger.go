package storage

import (
	"strings"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/voxel-terrain/internal/logging"
)

// badgerLogger направляет журнал BadgerDB в логгер компонента.
// Info у badger слишком болтлив, поэтому уходит в DEBUG.
type badgerLogger struct {
	l *logging.Logger
}

var _ badger.Logger = badgerLogger{}

func trimNewline(format string) string { return strings.TrimSuffix(format, "\n") }

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(trimNewline(format), args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(trimNewline(format), args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(trimNewline(format), args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Trace(trimNewline(format), args...)
}
