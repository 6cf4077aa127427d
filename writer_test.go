package zipline_test

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipline/zipline/source"
)

// blockingReader lets a test hold an Add call mid-payload-read until the
// test signals release, closing started the first time Read is called.
type blockingReader struct {
	data    []byte
	started chan struct{}
	release chan struct{}
	signal  bool
}

func (b *blockingReader) Read(p []byte) (int, error) {
	if !b.signal {
		b.signal = true
		close(b.started)
	}
	<-b.release
	n := copy(p, b.data)
	b.data = b.data[n:]
	if len(b.data) == 0 {
		return n, io.EOF
	}
	return n, nil
}

func TestWriter_DuplicateNameRejected(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Add("a.txt", strings.NewReader("one"), AddOptions{SourceSize: -1}))

	err := w.Add("a.txt", strings.NewReader("two"), AddOptions{SourceSize: -1})
	var zerr *Error
	require.ErrorAs(t, err, &zerr)
	assert.Equal(t, KindDuplicatedName, zerr.Kind)
}

func TestWriter_AddAfterCloseRejected(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Close(""))

	err := w.Add("late.txt", strings.NewReader("too late"), AddOptions{SourceSize: -1})
	assert.Error(t, err)
}

func TestWriter_DoubleCloseRejected(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Close(""))
	assert.Error(t, w.Close(""))
}

func TestWriter_ArchiveCommentTooLongRejected(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	err := w.Close(strings.Repeat("x", 65536+1))
	var zerr *Error
	require.ErrorAs(t, err, &zerr)
	assert.Equal(t, KindCommentTooLong, zerr.Kind)
}

func TestWriter_EntryCommentTooLongRejected(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	err := w.Add("a.txt", strings.NewReader("x"), AddOptions{SourceSize: -1, Comment: strings.Repeat("c", 0x10000)})
	var zerr *Error
	require.ErrorAs(t, err, &zerr)
	assert.Equal(t, KindCommentTooLong, zerr.Kind)
}

func TestWriter_DirectoryNameGetsTrailingSlash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "dir/", normalizedName("dir", true))
	assert.Equal(t, "dir/", normalizedName("dir/", true))
	assert.Equal(t, "file.txt", normalizedName("file.txt  ", false))
}

func TestWriter_StoredEntryProducesExactSeedLayout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	// A known source size on a stored, unencrypted, non-ZIP64 entry lets
	// the writer skip the trailing descriptor entirely (real crc/sizes go
	// straight into the local header), which is what produces S1's exact
	// 121-byte layout; an unknown size would fall back to streaming with
	// a descriptor and a longer archive.
	require.NoError(t, w.Add("hello.txt", strings.NewReader("Hello"), AddOptions{SourceSize: 5, Level: 0}))
	require.NoError(t, w.Close(""))

	out := buf.Bytes()
	assert.Len(t, out, 121)

	eocdOffset := bytes.LastIndex(out, []byte{0x50, 0x4B, 0x05, 0x06})
	require.Equal(t, 99, eocdOffset)

	cdSize := uint32(out[eocdOffset+12]) | uint32(out[eocdOffset+13])<<8 |
		uint32(out[eocdOffset+14])<<16 | uint32(out[eocdOffset+15])<<24
	assert.Equal(t, uint32(55), cdSize)

	r := NewReader(source.NewMemory(out, "test"))
	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint32(0xF7D18982), entries[0].CRC32)
}

func TestWriter_ForcedZip64PromotionUsesSentinelsAndExtra(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Add("big.bin", strings.NewReader("payload"), AddOptions{SourceSize: -1, Zip64: true}))
	require.NoError(t, w.Close(""))

	out := buf.Bytes()
	require.NotEqual(t, -1, bytes.LastIndex(out, []byte{0x50, 0x4B, 0x06, 0x06}), "zip64 eocd present")
	require.NotEqual(t, -1, bytes.LastIndex(out, []byte{0x50, 0x4B, 0x06, 0x07}), "zip64 locator present")

	r := NewReader(source.NewMemory(out, "test"))
	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "big.bin", entries[0].Name)
	require.NotNil(t, entries[0].Zip64)
}

func TestWriter_BufferedAndDirectAddsPreserveInvocationOrder(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Add("first.txt", strings.NewReader("1"), AddOptions{SourceSize: -1, BufferedWrite: true}))
	require.NoError(t, w.Add("second.txt", strings.NewReader("2"), AddOptions{SourceSize: -1}))
	require.NoError(t, w.Add("third.txt", strings.NewReader("3"), AddOptions{SourceSize: -1, BufferedWrite: true}))
	require.NoError(t, w.Close(""))

	r := NewReader(source.NewMemory(buf.Bytes(), "test"))
	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "first.txt", entries[0].Name)
	assert.Equal(t, "second.txt", entries[1].Name)
	assert.Equal(t, "third.txt", entries[2].Name)
}

// TestWriter_TicketCancelDoesNotDeadlockConcurrentBufferedAdds reproduces
// the §5/S5 concurrent-buffered scenario where a later ticket fails and is
// cancelled while an earlier ticket is still mid-build: the cancelled
// ticket must wait its turn before advancing the queue, or the earlier
// ticket's wait() loop blocks forever once it finally calls done().
func TestWriter_TicketCancelDoesNotDeadlockConcurrentBufferedAdds(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Add("zeroth.txt", strings.NewReader("0"), AddOptions{SourceSize: -1, BufferedWrite: true}))

	started := make(chan struct{})
	release := make(chan struct{})
	slow := &blockingReader{data: []byte("slow payload"), started: started, release: release}

	slowDone := make(chan error, 1)
	go func() {
		slowDone <- w.Add("slow.txt", slow, AddOptions{SourceSize: -1, BufferedWrite: true, Level: 6})
	}()

	<-started // slow.txt has taken its ticket and is mid-build

	err := w.Add("bad.txt", strings.NewReader("x"), AddOptions{SourceSize: -1, BufferedWrite: true, Level: 100})
	require.Error(t, err, "invalid deflate level must fail before the payload is touched")

	close(release) // let slow.txt finish reading its payload

	select {
	case err := <-slowDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal(`Add("slow.txt") deadlocked waiting for its ticket's turn`)
	}

	require.NoError(t, w.Add("last.txt", strings.NewReader("z"), AddOptions{SourceSize: -1}))
	require.NoError(t, w.Close(""))

	r := NewReader(source.NewMemory(buf.Bytes(), "test"))
	entries, err := r.Entries()
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"zeroth.txt", "slow.txt", "last.txt"}, names)
}
