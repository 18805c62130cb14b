package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelBelowThresholdIsSuppressed(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, &buf)
	l.emit(Info, "hidden")
	assert.Empty(t, buf.String())
}

func TestLevelAtThresholdIsEmitted(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, &buf)
	l.emit(Warn, "visible %d", 1)
	assert.Contains(t, buf.String(), "visible 1")
	assert.Contains(t, buf.String(), "WARN")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, Debug, ParseLevel("debug"))
	assert.Equal(t, Warn, ParseLevel("WARNING"))
	assert.Equal(t, Info, ParseLevel("nonsense"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "ERROR", Error.String())
}

func TestFileSinkReceivesPlainTextWithoutANSI(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "log.txt"))
	require.NoError(t, err)
	defer f.Close()

	l := New(Debug, nil)
	l.file = f
	l.emit(Error, "boom")

	content, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(content), "boom")
	assert.False(t, strings.Contains(string(content), "\033["))
}
