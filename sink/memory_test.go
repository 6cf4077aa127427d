package sink_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipline/zipline/sink"
)

func TestMemory_WriteThenFinalise(t *testing.T) {
	t.Parallel()

	m := sink.NewMemory()
	require.NoError(t, m.Init())

	n, err := m.WriteWindow([]byte("hello "))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, err = m.WriteWindow([]byte("world"))
	require.NoError(t, err)

	out, err := m.Finalise()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out.([]byte)))
}

func TestMemory_InitResetsPriorContent(t *testing.T) {
	t.Parallel()

	m := sink.NewMemory()
	require.NoError(t, m.Init())
	_, err := m.WriteWindow([]byte("stale"))
	require.NoError(t, err)

	require.NoError(t, m.Init())
	assert.Empty(t, m.Bytes())
}
