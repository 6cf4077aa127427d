package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// DeflateStage compresses Append input with DEFLATE (method 8). level
// follows compress/flate conventions; 0 means no compression still passes
// through the flate writer (so framing stays correct), not a STORE bypass --
// Assemble omits this stage entirely when the entry's policy says
// uncompressed, since STORE is modeled as the absence of a codec stage.
type DeflateStage struct {
	buf *bytes.Buffer
	w   *flate.Writer
}

// NewDeflateStage constructs a compressing stage at the given level.
func NewDeflateStage(level int) (*DeflateStage, error) {
	buf := &bytes.Buffer{}
	w, err := flate.NewWriter(buf, level)
	if err != nil {
		return nil, fmt.Errorf("codec: new flate writer: %w", err)
	}
	return &DeflateStage{buf: buf, w: w}, nil
}

func (s *DeflateStage) Append(p []byte) ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	if _, err := s.w.Write(p); err != nil {
		return nil, fmt.Errorf("codec: deflate write: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return nil, fmt.Errorf("codec: deflate flush: %w", err)
	}
	return s.drain(), nil
}

func (s *DeflateStage) Flush() (tail []byte, signature uint32, err error) {
	if err := s.w.Close(); err != nil {
		return nil, 0, fmt.Errorf("codec: deflate close: %w", err)
	}
	return s.drain(), 0, nil
}

func (s *DeflateStage) drain() []byte {
	if s.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	return out
}

// InflateStage decompresses DEFLATE input. Per the append/flush contract, a
// window's worth of input need not yield any output immediately: this stage
// buffers the compressed stream across Append calls and emits the entire
// decompressed tail on Flush.
type InflateStage struct {
	compressed bytes.Buffer
}

// NewInflateStage constructs a decompressing stage.
func NewInflateStage() *InflateStage {
	return &InflateStage{}
}

func (s *InflateStage) Append(p []byte) ([]byte, error) {
	if len(p) > 0 {
		s.compressed.Write(p)
	}
	return nil, nil
}

func (s *InflateStage) Flush() (tail []byte, signature uint32, err error) {
	fr := flate.NewReader(bytes.NewReader(s.compressed.Bytes()))
	defer fr.Close()
	data, err := io.ReadAll(fr)
	if err != nil {
		return nil, 0, fmt.Errorf("codec: inflate: %w", err)
	}
	return data, 0, nil
}
