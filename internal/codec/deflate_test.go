package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeflate_RoundtripAcrossMultipleAppends(t *testing.T) {
	t.Parallel()

	enc, err := NewDeflateStage(6)
	require.NoError(t, err)

	var compressed []byte
	for _, chunk := range []string{"the quick brown fox ", "jumps over ", "the lazy dog"} {
		out, err := enc.Append([]byte(chunk))
		require.NoError(t, err)
		compressed = append(compressed, out...)
	}
	tail, _, err := enc.Flush()
	require.NoError(t, err)
	compressed = append(compressed, tail...)

	dec := NewInflateStage()
	_, err = dec.Append(compressed)
	require.NoError(t, err)
	plain, _, err := dec.Flush()
	require.NoError(t, err)

	assert.Equal(t, "the quick brown fox jumps over the lazy dog", string(plain))
}

func TestDeflate_EmptyAppendIsNoop(t *testing.T) {
	t.Parallel()

	enc, err := NewDeflateStage(6)
	require.NoError(t, err)

	out, err := enc.Append(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestInflate_BuffersAcrossAppendsUntilFlush(t *testing.T) {
	t.Parallel()

	enc, err := NewDeflateStage(6)
	require.NoError(t, err)
	out, err := enc.Append([]byte("payload"))
	require.NoError(t, err)
	tail, _, err := enc.Flush()
	require.NoError(t, err)
	compressed := append(out, tail...)

	dec := NewInflateStage()
	mid, err := dec.Append(compressed)
	require.NoError(t, err)
	assert.Nil(t, mid, "InflateStage never produces output before Flush")

	plain, _, err := dec.Flush()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(plain))
}
