package zipline

import "io"

// ByteSource provides random access to archive bytes. The reader borrows
// a ByteSource; it does not own or close it.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// RangeReader is an optional capability a ByteSource may also implement,
// allowing the reader to request a streaming body for a span instead of
// copying through ReadAt. Sources backed by remote transports (HTTP range
// requests) implement this; in-memory and file sources need not.
type RangeReader interface {
	ReadRange(off, length int64) (io.ReadCloser, error)
}

// Sink is the writer-side counterpart: a destination that accepts bytes in
// strictly increasing order and is finalised once at close.
type Sink interface {
	Init() error
	WriteWindow(p []byte) (int, error)
	Finalise() (any, error)
}

// sinkWriter adapts a Sink to io.Writer so it can back a Writer's sink
// argument directly.
type sinkWriter struct{ Sink }

func (s sinkWriter) Write(p []byte) (int, error) { return s.WriteWindow(p) }

// NewSinkWriter initialises s and returns an io.Writer backed by it. The
// caller is responsible for calling s.Finalise() once writing is done
// (typically right after Writer.Close returns).
func NewSinkWriter(s Sink) (io.Writer, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	return sinkWriter{s}, nil
}
