package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiler_StartCPUWritesProfile(t *testing.T) {
	// Given: a profiler and a target path
	p := NewProfiler()
	path := filepath.Join(t.TempDir(), "cpu.prof")

	// When: profiling some work
	cleanup, err := p.StartCPU(path)
	require.NoError(t, err)
	busyWork()
	cleanup()

	// Then: the profile file exists and is non-empty
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestProfiler_StartCPUBadPath(t *testing.T) {
	p := NewProfiler()
	_, err := p.StartCPU(filepath.Join(t.TempDir(), "missing", "cpu.prof"))
	assert.Error(t, err)
}

func TestProfiler_WriteHeap(t *testing.T) {
	p := NewProfiler()
	path := filepath.Join(t.TempDir(), "heap.prof")

	require.NoError(t, p.WriteHeap(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func busyWork() {
	sink := 0
	for i := 0; i < 1_000_000; i++ {
		sink += i % 7
	}
	_ = sink
}
