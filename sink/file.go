package sink

import (
	"fmt"
	"os"
)

// File is a Sink that writes to a plain file, created (or truncated) on
// Init and closed on Finalise.
type File struct {
	path string
	f    *os.File
}

// NewFile returns a Sink that will create/truncate path on Init.
func NewFile(path string) *File { return &File{path: path} }

// Init creates (or truncates) the backing file.
func (s *File) Init() error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("sink: create %s: %w", s.path, err)
	}
	s.f = f
	return nil
}

// WriteWindow writes p to the file.
func (s *File) WriteWindow(p []byte) (int, error) {
	if s.f == nil {
		return 0, fmt.Errorf("sink: %s: WriteWindow before Init", s.path)
	}
	return s.f.Write(p)
}

// Finalise closes the file and returns its path.
func (s *File) Finalise() (any, error) {
	if s.f == nil {
		return nil, fmt.Errorf("sink: %s: Finalise before Init", s.path)
	}
	err := s.f.Close()
	s.f = nil
	return s.path, err
}
