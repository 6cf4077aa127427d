package zipline

import (
	"io"
	"sync"

	"github.com/opencontainers/go-digest"
)

// digestTee accumulates a running content digest alongside some other
// activity (bytes written to a sink, bytes read from a source), guarded
// by its own mutex since Reader/Writer allow concurrent callers.
type digestTee struct {
	mu       sync.Mutex
	digester digest.Digester
}

func newDigestTee() *digestTee {
	return &digestTee{digester: digest.Canonical.Digester()}
}

func (d *digestTee) observe(p []byte) {
	if len(p) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = d.digester.Hash().Write(p)
}

func (d *digestTee) digest() digest.Digest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.digester.Digest()
}

// digestingWriter tees every Write through a digestTee before forwarding
// to the underlying io.Writer, so a Writer's OCIDigest reflects exactly
// the bytes it has handed the sink so far.
type digestingWriter struct {
	w    interface{ Write([]byte) (int, error) }
	tee  *digestTee
}

func (d digestingWriter) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	if n > 0 {
		d.tee.observe(p[:n])
	}
	return n, err
}

// digestingSource wraps a ByteSource, teeing every ReadAt result through a
// digestTee. Reads are random access, so the resulting digest reflects
// the bytes observed across all calls made so far, in call order, rather
// than a strict byte-offset stream; sufficient for the convenience
// content handle this method exists to provide.
type digestingSource struct {
	ByteSource
	tee *digestTee
}

func (d digestingSource) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.ByteSource.ReadAt(p, off)
	if n > 0 {
		d.tee.observe(p[:n])
	}
	return n, err
}

// digestingRangeSource is digestingSource plus a forwarded RangeReader
// capability, used when the wrapped ByteSource implements one. A plain
// digestingSource deliberately has no ReadRange method: defining one
// unconditionally would make every wrapped source satisfy the RangeReader
// interface, breaking the ok-to-fall-back-to-ReadAt checks that
// cache.BlockCache.Wrap and similar callers perform via type assertion.
type digestingRangeSource struct {
	digestingSource
	rr RangeReader
}

func (d digestingRangeSource) ReadRange(off, length int64) (io.ReadCloser, error) {
	return d.rr.ReadRange(off, length)
}

// wrapSource ties a ByteSource to tee, preserving its RangeReader
// capability (if any) under the wrapper.
func wrapSource(src ByteSource, tee *digestTee) ByteSource {
	base := digestingSource{ByteSource: src, tee: tee}
	if rr, ok := src.(RangeReader); ok {
		return digestingRangeSource{digestingSource: base, rr: rr}
	}
	return base
}

// OCIDigest returns a content-addressed digest over the archive bytes
// streamed to the sink so far. It is a convenience handle independent of
// any single entry's CRC-32/HMAC-SHA1 and may be called at any point in
// the writer's lifecycle, including before Close.
func (w *Writer) OCIDigest() digest.Digest {
	return w.digestTee.digest()
}

// OCIDigest returns a content-addressed digest over the archive bytes
// read from the source so far (via Entries, Extract, or ReadAll calls).
// It is a convenience handle independent of any single entry's CRC-32
// and may be called at any point in the reader's lifecycle.
func (r *Reader) OCIDigest() digest.Digest {
	return r.digestTee.digest()
}
