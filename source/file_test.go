package source_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipline/zipline/source"
)

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.bin")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestOpenFile_ReadAtAndSize(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "the quick brown fox")
	f, err := source.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.EqualValues(t, len("the quick brown fox"), f.Size())
	assert.Equal(t, "file:"+path, f.SourceID())

	buf := make([]byte, 5)
	n, err := f.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "quick", string(buf))
}

func TestOpenFile_MissingPathErrors(t *testing.T) {
	t.Parallel()

	_, err := source.OpenFile(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestFile_ReadRangeDoesNotDisturbSharedOffset(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "0123456789")
	f, err := source.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rc, err := f.ReadRange(3, 4)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(got))
	require.NoError(t, rc.Close())

	buf := make([]byte, 10)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(buf[:n]))
}
