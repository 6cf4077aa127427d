package mover

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipline/zipline/internal/codec"
)

func TestMove_StorePolicyIsByteIdentical(t *testing.T) {
	t.Parallel()

	source := strings.NewReader("the quick brown fox jumps over the lazy dog")
	pipeline, err := codec.Assemble(codec.Deflate, codec.Policy{})
	require.NoError(t, err)

	var sink bytes.Buffer
	var progressed []int64
	n, err := Move(source, 4, 19, pipeline, &sink, 4, func(processed, total int64) {
		progressed = append(progressed, processed)
	})
	require.NoError(t, err)
	assert.Equal(t, "quick brown fox jum", sink.String())
	assert.EqualValues(t, len("quick brown fox jum"), n)
	assert.NotEmpty(t, progressed)
	assert.Equal(t, int64(19), progressed[len(progressed)-1])
}

func TestMove_DeflateSignedRoundtripsThroughInflate(t *testing.T) {
	t.Parallel()

	plaintext := "some payload data that spans several mover windows of output"
	enc, err := codec.Assemble(codec.Deflate, codec.Policy{Compressed: true, Signed: true, Level: 6})
	require.NoError(t, err)

	var compressed bytes.Buffer
	_, err = Move(strings.NewReader(plaintext), 0, int64(len(plaintext)), enc, &compressed, 8, nil)
	require.NoError(t, err)

	dec, err := codec.Assemble(codec.Inflate, codec.Policy{Compressed: true, Signed: true, ExpectedCRC: enc.CRC32()})
	require.NoError(t, err)
	var plain bytes.Buffer
	_, err = Move(bytes.NewReader(compressed.Bytes()), 0, int64(compressed.Len()), dec, &plain, 8, nil)
	require.NoError(t, err)

	assert.Equal(t, plaintext, plain.String())
}

func TestMove_ChunkSizeBelowMinimumIsClamped(t *testing.T) {
	t.Parallel()

	pipeline, err := codec.Assemble(codec.Deflate, codec.Policy{})
	require.NoError(t, err)
	var sink bytes.Buffer
	n, err := Move(strings.NewReader(strings.Repeat("x", 100)), 0, 100, pipeline, &sink, 1, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 100, n)
}

func TestMove_ZeroLengthSpanWritesNothing(t *testing.T) {
	t.Parallel()

	pipeline, err := codec.Assemble(codec.Deflate, codec.Policy{})
	require.NoError(t, err)
	var sink bytes.Buffer
	n, err := Move(strings.NewReader("anything"), 0, 0, pipeline, &sink, 16, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, sink.Len())
}
