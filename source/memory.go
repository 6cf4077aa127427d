package source

import (
	"bytes"
	"fmt"
	"io"
)

// Memory is a ByteSource backed by an in-memory byte slice. It is the
// simplest ByteSource implementation, useful for archives already fully
// resident in memory (test fixtures, small downloads, generated blobs).
type Memory struct {
	data     []byte
	sourceID string
}

// NewMemory wraps data as a ByteSource. data is not copied; callers must
// not mutate it for the lifetime of the returned Memory.
func NewMemory(data []byte, sourceID string) *Memory {
	if sourceID == "" {
		sourceID = fmt.Sprintf("memory:%d", len(data))
	}
	return &Memory{data: data, sourceID: sourceID}
}

// Size returns the number of bytes in data.
func (m *Memory) Size() int64 { return int64(len(m.data)) }

// SourceID returns the identifier passed to NewMemory, or a synthesized one.
func (m *Memory) SourceID() string { return m.sourceID }

// ReadAt implements io.ReaderAt over the backing slice.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("source: read at %d: negative offset", off)
	}
	if off >= int64(len(m.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ReadRange returns a reader over [off, off+length), satisfying
// zipline.RangeReader so memory sources can skip the ReadAt copy path
// when a caller prefers streaming.
func (m *Memory) ReadRange(off, length int64) (io.ReadCloser, error) {
	if off < 0 || length < 0 {
		return nil, fmt.Errorf("source: read range [%d,+%d): negative bound", off, length)
	}
	if off >= int64(len(m.data)) {
		return io.NopCloser(bytes.NewReader(nil)), io.EOF
	}
	end := off + length
	if end > int64(len(m.data)) {
		end = int64(len(m.data))
	}
	return io.NopCloser(bytes.NewReader(m.data[off:end])), nil
}
