package zipline_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipline/zipline/cache"
	"github.com/zipline/zipline/source"
)

func TestWithBlockCache_ReaderStillExtractsCorrectly(t *testing.T) {
	t.Parallel()

	data := buildArchive(t, func(w *Writer) {
		require.NoError(t, w.Add("a.txt", strings.NewReader("cached payload"), AddOptions{SourceSize: -1, Level: 6}))
	})

	bc := cache.NewMemoryBlockCache(0)
	r := NewReader(source.NewMemory(data, "test"), WithBlockCache(bc, cache.WithBlockSize(32)))

	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, err := r.ReadAll(entries[0])
	require.NoError(t, err)
	assert.Equal(t, "cached payload", string(got))
	assert.Positive(t, bc.SizeBytes())
}

func TestWithContentCache_SecondReadAllServedFromCache(t *testing.T) {
	t.Parallel()

	data := buildArchive(t, func(w *Writer) {
		require.NoError(t, w.Add("a.txt", strings.NewReader("cached payload"), AddOptions{SourceSize: -1, Level: 6}))
	})

	cc := cache.NewMemoryContentCache(0)
	r := NewReader(source.NewMemory(data, "test"), WithContentCache(cc))

	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	first, err := r.ReadAll(entries[0])
	require.NoError(t, err)
	assert.Equal(t, "cached payload", string(first))
	assert.Positive(t, cc.SizeBytes())

	second, err := r.ReadAll(entries[0])
	require.NoError(t, err)
	assert.Equal(t, "cached payload", string(second))
}

func TestWithContentCache_IdenticalContentSharesOneCachedCopy(t *testing.T) {
	t.Parallel()

	data := buildArchive(t, func(w *Writer) {
		require.NoError(t, w.Add("a.txt", strings.NewReader("same bytes"), AddOptions{SourceSize: -1}))
		require.NoError(t, w.Add("b.txt", strings.NewReader("same bytes"), AddOptions{SourceSize: -1}))
	})

	cc := cache.NewMemoryContentCache(0)
	r := NewReader(source.NewMemory(data, "test"), WithContentCache(cc))

	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	_, err = r.ReadAll(entries[0])
	require.NoError(t, err)
	sizeAfterFirst := cc.SizeBytes()

	_, err = r.ReadAll(entries[1])
	require.NoError(t, err)
	assert.Equal(t, sizeAfterFirst, cc.SizeBytes(), "identical content should not grow the cache")
}

func TestWithContentCache_EncryptedEntryNeverCached(t *testing.T) {
	t.Parallel()

	data := buildArchive(t, func(w *Writer) {
		require.NoError(t, w.Add("secret.txt", strings.NewReader("top secret"), AddOptions{
			SourceSize: -1, Password: "hunter2",
		}))
	})

	cc := cache.NewMemoryContentCache(0)
	r := NewReader(source.NewMemory(data, "test"), WithContentCache(cc))

	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = r.ReadAll(entries[0], WithPassword("hunter2"))
	require.NoError(t, err)
	assert.Zero(t, cc.SizeBytes(), "encrypted content must never be memoized")

	_, err = r.ReadAll(entries[0])
	assert.Error(t, err, "a later call without the password must still fail")
}

func TestWithBlockCache_RejectsInvalidWrapOption(t *testing.T) {
	t.Parallel()

	data := buildArchive(t, func(w *Writer) {
		require.NoError(t, w.Add("a.txt", strings.NewReader("x"), AddOptions{SourceSize: -1}))
	})

	bc := cache.NewMemoryBlockCache(0)
	r := NewReader(source.NewMemory(data, "test"), WithBlockCache(bc, cache.WithBlockSize(0)))

	_, err := r.Entries()
	var zerr *Error
	require.ErrorAs(t, err, &zerr)
	assert.Equal(t, KindConfigurationError, zerr.Kind)
}
