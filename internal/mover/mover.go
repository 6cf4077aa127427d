// Package mover implements the chunked data mover: it reads a fixed input
// span from a random-access source in fixed-size windows, drives those
// windows through a codec stage, and writes the stage's output to a sink,
// reporting progress after every window. It handles a single ordered span
// rather than a set of spans spread over workers, since one entry's payload
// must be read and written in strict window order (§5 ordering guarantee).
package mover

import (
	"fmt"
	"io"
)

// Stage is the minimal append/flush surface the mover needs to drive; it
// is satisfied by *codec.Pipeline and by internal/worker.Handle.
type Stage interface {
	Append(p []byte) ([]byte, error)
	Flush() ([]byte, error)
}

// ProgressFunc receives a monotonically increasing (bytesProcessed, total)
// tuple after every window. Implementations must not block the mover for
// long; this is a best-effort side channel per §7.
type ProgressFunc func(bytesProcessed, total int64)

// MinChunkSize is the effective minimum window size regardless of what a
// caller's configuration requests.
const MinChunkSize = 64

// Move drives exactly length bytes, starting at offset in source, through
// stage in windows of at most chunkSize bytes, writing stage output to
// sink as it is produced. It returns the total number of bytes written to
// sink (which may differ from length under compression/encryption).
//
// Move does not seek between calls; it reads the span sequentially via
// io.NewSectionReader, matching the "within one call the mover reads
// sequentially" contract.
func Move(source io.ReaderAt, offset, length int64, stage Stage, sink io.Writer, chunkSize int, progress ProgressFunc) (int64, error) {
	if chunkSize < MinChunkSize {
		chunkSize = MinChunkSize
	}

	section := io.NewSectionReader(source, offset, length)
	buf := make([]byte, chunkSize)

	var written, processed int64
	for processed < length {
		want := int64(chunkSize)
		if remaining := length - processed; remaining < want {
			want = remaining
		}
		n, err := io.ReadFull(section, buf[:want])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return written, fmt.Errorf("mover: read window at %d: %w", offset+processed, err)
		}
		if int64(n) != want {
			return written, fmt.Errorf("mover: short read at %d: got %d want %d", offset+processed, n, want)
		}

		out, err := stage.Append(buf[:n])
		if err != nil {
			return written, fmt.Errorf("mover: append: %w", err)
		}
		if len(out) > 0 {
			nw, werr := sink.Write(out)
			written += int64(nw)
			if werr != nil {
				return written, fmt.Errorf("mover: write window: %w", werr)
			}
		}

		processed += int64(n)
		if progress != nil {
			progress(processed, length)
		}
	}

	tail, err := stage.Flush()
	if err != nil {
		return written, err
	}
	if len(tail) > 0 {
		nw, werr := sink.Write(tail)
		written += int64(nw)
		if werr != nil {
			return written, fmt.Errorf("mover: write tail: %w", werr)
		}
	}
	return written, nil
}
