package source

import (
	"fmt"
	"io"
	"os"
)

// File is a ByteSource backed by an *os.File opened for random access.
// The file is closed only by File's Close method; no other method closes it.
type File struct {
	f        *os.File
	size     int64
	sourceID string
}

// OpenFile opens path and wraps it as a ByteSource.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: stat %s: %w", path, err)
	}
	return &File{f: f, size: info.Size(), sourceID: "file:" + path}, nil
}

// NewFile wraps an already-open *os.File. Size is read once via Stat.
func NewFile(f *os.File) (*File, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("source: stat %s: %w", f.Name(), err)
	}
	return &File{f: f, size: info.Size(), sourceID: "file:" + f.Name()}, nil
}

// Size returns the file size captured at open time.
func (f *File) Size() int64 { return f.size }

// SourceID returns a path-derived identifier.
func (f *File) SourceID() string { return f.sourceID }

// ReadAt delegates to the underlying *os.File.
func (f *File) ReadAt(p []byte, off int64) (int, error) { return f.f.ReadAt(p, off) }

// ReadRange opens an independent section reader over [off, off+length);
// it does not seek the shared *os.File, so it's safe alongside concurrent
// ReadAt calls on the same File.
func (f *File) ReadRange(off, length int64) (io.ReadCloser, error) {
	if off < 0 || length < 0 {
		return nil, fmt.Errorf("source: read range [%d,+%d): negative bound", off, length)
	}
	return io.NopCloser(io.NewSectionReader(f.f, off, length)), nil
}

// Close closes the underlying file.
func (f *File) Close() error { return f.f.Close() }
