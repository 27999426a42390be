package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/fcp/internal/config"
)

func TestNewBWLimiter(t *testing.T) {
	t.Parallel()

	t.Run("burst capped to rate when rate < 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(1024)
		assert.Equal(t, 1024, lim.Burst())
	})

	t.Run("burst is 1MB when rate >= 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(10 * 1024 * 1024)
		assert.Equal(t, 1<<20, lim.Burst())
	})
}

func TestCopyRespectsBandwidthLimit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	// 10 KB at 5 KB/s should take ~1s after the burst.
	data := bytes.Repeat([]byte("a"), 10*1024)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	c := NewCopier(config.Options{Reflink: config.Never}, Deps{Limiter: NewBWLimiter(5 * 1024)})
	start := time.Now()
	out := c.CopyFile(context.Background(), src, dst)
	elapsed := time.Since(start)

	require.NoError(t, out.Err)
	assert.Greater(t, elapsed, 500*time.Millisecond, "rate limiter should slow the copy")
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCopyBandwidthLimitCancelled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte("b"), 64*1024), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := NewCopier(config.Options{Reflink: config.Never}, Deps{Limiter: NewBWLimiter(1024)})
	out := c.CopyFile(ctx, src, filepath.Join(dir, "dst"))
	assert.Error(t, out.Err)
}
