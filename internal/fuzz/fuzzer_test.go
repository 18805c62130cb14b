package fuzz

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lopfuzz/lopfuzz/internal/config"
	"github.com/lopfuzz/lopfuzz/internal/corpus"
	"github.com/lopfuzz/lopfuzz/internal/coverage"
	"github.com/lopfuzz/lopfuzz/internal/state"
)

// TestBanditRewardComputedBeforeMerge guards the spec.md §9 fix directly:
// Diff must be taken against global coverage before Merge runs, or the
// reward is always zero. This mirrors the exact sequence Fuzzer.Run uses.
func TestBanditRewardComputedBeforeMerge(t *testing.T) {
	global := coverage.NewEdgeSet(0)
	global[1] = struct{}{}

	seedCoverage := coverage.EdgeSet{1: {}, 2: {}, 3: {}}

	newlyDiscovered := coverage.Diff(seedCoverage, global)
	coverage.Merge(global, seedCoverage)

	assert.Len(t, newlyDiscovered, 2, "edges 2 and 3 are new, edge 1 was already covered")
	assert.Len(t, global, 3)

	// Computing the diff after the merge (the original's bug) always
	// yields zero, since every edge is now already in global.
	postMergeDiff := coverage.Diff(seedCoverage, global)
	assert.Empty(t, postMergeDiff)
}

func newFuzzerForUnitTest(t *testing.T) (*Fuzzer, *config.Settings) {
	t.Helper()
	root := t.TempDir()
	seeds := filepath.Join(root, "seeds")
	queue := filepath.Join(root, "queue")
	crashes := filepath.Join(root, "crashes")
	require.NoError(t, os.MkdirAll(seeds, 0o755))
	require.NoError(t, os.MkdirAll(queue, 0o755))
	require.NoError(t, os.MkdirAll(crashes, 0o755))

	current := filepath.Join(root, "current_input")
	require.NoError(t, os.WriteFile(current, []byte("ABCD"), 0o600))

	cfg := &config.Settings{
		Target:        "/does/not/matter/for/this/test",
		SeedsFolder:   seeds,
		QueueFolder:   queue,
		CrashesFolder: crashes,
		CurrentInput:  current,
		TimeoutMS:     500,
	}
	corpusMgr := corpus.New(cfg.SeedsFolder, cfg.QueueFolder, cfg.CrashesFolder)
	stateMgr := state.NewFileManager(root)
	f := New(cfg, corpusMgr, stateMgr)
	return f, cfg
}

func TestNewAppliesDefaultAvgExecTimeAndTimeout(t *testing.T) {
	f, _ := newFuzzerForUnitTest(t)
	assert.Equal(t, defaultAvgExecTime, f.avgExecTime)
	assert.Equal(t, 500*time.Millisecond, f.timeoutAfter)
}

func TestRecordExecTimeComputesRollingAverage(t *testing.T) {
	f, _ := newFuzzerForUnitTest(t)
	f.recordExecTime(0.2)
	f.recordExecTime(0.4)
	assert.InDelta(t, 0.3, f.avgExecTime, 1e-9)
	assert.Equal(t, 2, f.execCount)
}

func TestSaveCrashUsesCurrentInputContentsAndOriginName(t *testing.T) {
	f, cfg := newFuzzerForUnitTest(t)
	require.NoError(t, os.WriteFile(cfg.CurrentInput, []byte("AAAA"), 0o600))

	path, err := f.saveCrash(filepath.Join(cfg.SeedsFolder, "origin_seed"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(data))
	assert.Contains(t, filepath.Base(path), "origin_seed")
}

func TestSaveInterestingNamesByNextAllocatedID(t *testing.T) {
	f, cfg := newFuzzerForUnitTest(t)
	require.NoError(t, os.WriteFile(cfg.CurrentInput, []byte("ZZZZ"), 0o600))

	path, err := f.saveInteresting()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.QueueFolder, "id_0"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ZZZZ", string(data))
}

func TestCopyFileCopiesContents(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))

	require.NoError(t, copyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
