package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARN"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("world", &buf, WARN)

	l.Info("скрыто")
	l.Warn("видно %d", 1)
	assert.NotContains(t, buf.String(), "скрыто")
	assert.Contains(t, buf.String(), "[WARN] [world] видно 1")

	l.SetLevels(TRACE, ERROR)
	l.Trace("трасса")
	assert.Contains(t, buf.String(), "трасса")
}

func TestDefaultLoggerNilIsSilent(t *testing.T) {
	SetDefaultLogger(nil)
	assert.NotPanics(t, func() { Info("никуда") })

	var buf bytes.Buffer
	SetDefaultLogger(NewWriterLogger("", &buf, DEBUG))
	defer SetDefaultLogger(nil)
	Debug("сюда")
	assert.Contains(t, buf.String(), "[DEBUG] сюда")
}

func TestManagerAppliesLevels(t *testing.T) {
	LogDir = t.TempDir()
	lm := GetLoggerManager()
	defer lm.CloseAll()

	var buf bytes.Buffer
	SetDefaultLogger(NewWriterLogger("", &buf, INFO))
	defer SetDefaultLogger(nil)

	lm.SetDefaultLevels(ERROR, ERROR)
	Warn("не видно")
	assert.Empty(t, buf.String())

	logger, err := lm.GetLogger("storage")
	require.NoError(t, err)
	same, err := lm.GetLogger("storage")
	require.NoError(t, err)
	assert.Same(t, logger, same)
	assert.Contains(t, lm.ListComponents(), "storage")
	assert.Error(t, lm.SetLogLevel("missing", INFO, INFO))

	lm.SetDefaultLevels(INFO, DEBUG)
}
