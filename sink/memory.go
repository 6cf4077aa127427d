// Package sink provides concrete zipline.Sink implementations: an
// in-memory buffer and a plain file, mirroring the source package's
// Memory/File ByteSource pair.
package sink

import "bytes"

// Memory is a Sink that accumulates written bytes in memory. Finalise
// returns the accumulated []byte.
type Memory struct {
	buf bytes.Buffer
}

// NewMemory returns an empty Memory sink.
func NewMemory() *Memory { return &Memory{} }

// Init resets the buffer so a Memory sink can be reused across entries.
func (m *Memory) Init() error {
	m.buf.Reset()
	return nil
}

// WriteWindow appends p to the buffer.
func (m *Memory) WriteWindow(p []byte) (int, error) { return m.buf.Write(p) }

// Finalise returns the accumulated bytes as []byte.
func (m *Memory) Finalise() (any, error) { return m.buf.Bytes(), nil }

// Bytes returns the buffer's current contents without finalising.
func (m *Memory) Bytes() []byte { return m.buf.Bytes() }
