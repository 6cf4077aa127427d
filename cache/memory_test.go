package cache_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipline/zipline/cache"
	"github.com/zipline/zipline/internal/testutil"
)

func TestMemoryBlockCache_ReadAtMatchesSourceAcrossBlockBoundaries(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("0123456789"), 200) // 2000 bytes
	src := testutil.NewMockByteSource(data)

	c := cache.NewMemoryBlockCache(0)
	wrapped, err := c.Wrap(src, cache.WithBlockSize(64), cache.WithMaxBlocksPerRead(0))
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := wrapped.ReadAt(buf, 150)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[150:250], buf)
}

func TestMemoryBlockCache_RepeatedReadsHitCache(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("x"), 1000)
	src := testutil.NewMockByteSource(data)

	c := cache.NewMemoryBlockCache(0)
	wrapped, err := c.Wrap(src, cache.WithBlockSize(64))
	require.NoError(t, err)

	buf := make([]byte, 10)
	_, err = wrapped.ReadAt(buf, 0)
	require.NoError(t, err)
	sizeAfterFirst := c.SizeBytes()
	assert.Positive(t, sizeAfterFirst)

	_, err = wrapped.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, sizeAfterFirst, c.SizeBytes(), "second read of the same block must not grow the cache")
}

func TestMemoryBlockCache_PruneEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("y"), 1000)
	src := testutil.NewMockByteSource(data)

	c := cache.NewMemoryBlockCache(0)
	wrapped, err := c.Wrap(src, cache.WithBlockSize(64), cache.WithMaxBlocksPerRead(0))
	require.NoError(t, err)

	buf := make([]byte, 1)
	for _, off := range []int64{0, 64, 128} {
		_, err := wrapped.ReadAt(buf, off)
		require.NoError(t, err)
	}
	require.Equal(t, int64(192), c.SizeBytes())

	freed, err := c.Prune(64)
	require.NoError(t, err)
	assert.Equal(t, int64(128), freed)
	assert.Equal(t, int64(64), c.SizeBytes())
}

func TestMemoryBlockCache_ReadPastEndReturnsShortReadWithEOF(t *testing.T) {
	t.Parallel()

	data := []byte("short source")
	src := testutil.NewMockByteSource(data)

	c := cache.NewMemoryBlockCache(0)
	wrapped, err := c.Wrap(src, cache.WithBlockSize(64))
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := wrapped.ReadAt(buf, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf[:n])
}

func TestMemoryBlockCache_SpanBeyondMaxBlocksPerReadBypassesCache(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("z"), 1000)
	src := testutil.NewMockByteSource(data)

	c := cache.NewMemoryBlockCache(0)
	wrapped, err := c.Wrap(src, cache.WithBlockSize(64), cache.WithMaxBlocksPerRead(1))
	require.NoError(t, err)

	buf := make([]byte, 500) // spans far more than 1 block at 64 bytes each
	n, err := wrapped.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 500, n)
	assert.Zero(t, c.SizeBytes(), "bypassed reads must not populate the cache")
}

func TestMemoryBlockCache_WrapRejectsNonPositiveBlockSize(t *testing.T) {
	t.Parallel()

	c := cache.NewMemoryBlockCache(0)
	_, err := c.Wrap(testutil.NewMockByteSource([]byte("x")), cache.WithBlockSize(0))
	assert.Error(t, err)
}

func TestMemoryBlockCache_SizeAndSourceIDPassThrough(t *testing.T) {
	t.Parallel()

	src := testutil.NewMockByteSource([]byte("hello"))
	c := cache.NewMemoryBlockCache(0)
	wrapped, err := c.Wrap(src)
	require.NoError(t, err)

	assert.Equal(t, src.Size(), wrapped.Size())
	assert.Equal(t, src.SourceID(), wrapped.SourceID())
}
