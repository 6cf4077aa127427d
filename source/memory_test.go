package source_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipline/zipline/source"
)

func TestMemory_ReadAtWithinBounds(t *testing.T) {
	t.Parallel()

	m := source.NewMemory([]byte("hello world"), "")
	buf := make([]byte, 5)
	n, err := m.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))
}

func TestMemory_ReadAtPastEndReturnsEOF(t *testing.T) {
	t.Parallel()

	m := source.NewMemory([]byte("short"), "")
	buf := make([]byte, 10)
	n, err := m.ReadAt(buf, 2)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 3, n)
}

func TestMemory_SourceIDDefaultsWhenEmpty(t *testing.T) {
	t.Parallel()

	m := source.NewMemory([]byte("1234"), "")
	assert.Equal(t, "memory:4", m.SourceID())

	named := source.NewMemory([]byte("1234"), "custom")
	assert.Equal(t, "custom", named.SourceID())
}

func TestMemory_ReadRangeClampsToLength(t *testing.T) {
	t.Parallel()

	m := source.NewMemory([]byte("0123456789"), "")
	rc, err := m.ReadRange(8, 100)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "89", string(got))
}

func TestMemory_Size(t *testing.T) {
	t.Parallel()
	m := source.NewMemory([]byte("abcdef"), "")
	assert.EqualValues(t, 6, m.Size())
}
