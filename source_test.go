package zipline_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipline/zipline/sink"
	"github.com/zipline/zipline/source"
)

func TestNewSinkWriter_DrivesWriterIntoSink(t *testing.T) {
	t.Parallel()

	ms := sink.NewMemory()
	w, err := NewSinkWriter(ms)
	require.NoError(t, err)

	zw := NewWriter(w)
	require.NoError(t, zw.Add("a.txt", strings.NewReader("payload"), AddOptions{SourceSize: -1}))
	require.NoError(t, zw.Close(""))

	out, err := ms.Finalise()
	require.NoError(t, err)
	data := out.([]byte)
	assert.NotEmpty(t, data)

	r := NewReader(source.NewMemory(data, "test"))
	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got, err := r.ReadAll(entries[0])
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}
