package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-terrain/internal/logging"
)

func TestBadgerLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	bl := badgerLogger{l: logging.NewWriterLogger("storage", &buf, logging.DEBUG)}

	bl.Warningf("compaction %d\n", 3)
	bl.Infof("replaying\n")
	bl.Debugf("не видно\n")

	out := buf.String()
	assert.Contains(t, out, "[WARN] [storage] compaction 3")
	assert.Contains(t, out, "[DEBUG] [storage] replaying")
	assert.NotContains(t, out, "не видно")
	assert.NotContains(t, out, "replaying\n\n")
}

func TestStorageWithLogger(t *testing.T) {
	var buf bytes.Buffer
	ws, err := NewWorldStorageWithLogger(t.TempDir(), logging.NewWriterLogger("storage", &buf, logging.TRACE))
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	assert.NotEmpty(t, buf.String())
}
