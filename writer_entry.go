package zipline

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/zipline/zipline/internal/codec"
	"github.com/zipline/zipline/internal/sizing"
)

const sigDataDescriptor = 0x08074b50

// Add writes one archive member: a local file header, its (possibly
// compressed/encrypted) payload, and a trailing data descriptor unless the
// entry is stored with a known size and needs neither encryption nor ZIP64
// (sizes and CRC then sit in the local header), per §4.6
// "add(name, source?, options)". payload is ignored for directory entries.
func (w *Writer) Add(name string, payload io.Reader, opts AddOptions) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return newError(KindBadFormat, "Add", fmt.Errorf("writer is closed"))
	}
	w.mu.Unlock()

	name = normalizedName(name, opts.Directory)

	w.mu.Lock()
	if w.names[name] {
		w.mu.Unlock()
		return newError(KindDuplicatedName, "Add", fmt.Errorf("duplicate name %q", name))
	}
	w.names[name] = true
	w.mu.Unlock()

	if len(opts.Comment) > 0xFFFF {
		return newError(KindCommentTooLong, "Add", fmt.Errorf("entry comment is %d bytes, max 65535", len(opts.Comment)))
	}

	zip64 := opts.Zip64
	w.mu.Lock()
	if w.zip64 {
		zip64 = true
	}
	if opts.SourceSize >= 0 && uint64(opts.SourceSize) >= zip64Threshold { //nolint:gosec // guarded by >= 0
		zip64 = true
	}
	if zip64 {
		w.zip64 = true
	}
	w.mu.Unlock()

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}

	entry := &pendingEntry{
		name:       name,
		nameRaw:    []byte(name),
		directory:  opts.Directory,
		compressed: opts.Level != 0 && !opts.Directory,
		encrypted:  opts.Password != "",
		password:   opts.Password,
		zip64:      zip64,
		level:      opts.Level,
		modTime:    modTime,
		comment:    opts.Comment,
		extraRaw:   opts.ExtraRaw,
	}
	entry.compressed = entry.compressed && !entry.directory

	ticket := w.tickets.take()

	if opts.BufferedWrite {
		var buf bytes.Buffer
		if err := w.emitEntry(&buf, entry, payload, opts); err != nil {
			w.tickets.cancel(ticket)
			return err
		}
		w.tickets.wait(ticket)
		defer w.tickets.done(ticket)

		w.mu.Lock()
		entry.localOffset = w.offset
		if _, err := w.sink.Write(buf.Bytes()); err != nil {
			w.mu.Unlock()
			return newError(KindBadFormat, "Add", err)
		}
		w.offset += uint64(buf.Len())
		w.pending = append(w.pending, entry)
		w.mu.Unlock()
		return nil
	}

	w.tickets.wait(ticket)
	defer w.tickets.done(ticket)

	w.mu.Lock()
	entry.localOffset = w.offset
	w.mu.Unlock()

	counter := &countingWriter{w: w.sink}
	if err := w.emitEntry(counter, entry, payload, opts); err != nil {
		return err
	}

	w.mu.Lock()
	w.offset += uint64(counter.n)
	w.pending = append(w.pending, entry)
	w.mu.Unlock()
	return nil
}

// emitEntry writes the local header, drives the payload through the
// codec pipeline, and writes the trailing data descriptor to target,
// backfilling entry's crc/size fields as it goes. target may be the real
// sink (direct writes) or a transient buffer (bufferedWrite).
//
// A stored (uncompressed), unencrypted, non-ZIP64 entry whose source size
// is known ahead of time skips the descriptor entirely: its crc and sizes
// are computed by draining the payload into a temporary buffer before the
// local header is written, so the header carries real values instead of
// placeholders and bit 3 of the general-purpose flag is left clear. Every
// other case streams straight to target with placeholders and a trailing
// descriptor, since the compressed size (or, for encrypted/unknown-size
// sources, either size) is not known until the payload has been read.
func (w *Writer) emitEntry(target io.Writer, entry *pendingEntry, payload io.Reader, opts AddOptions) error {
	method := CompressionStore
	switch {
	case entry.encrypted:
		method = compressionAESWrap
	case entry.compressed:
		method = CompressionDeflate
	}

	version := uint16(0x14)
	if entry.zip64 {
		version = 0x2D
	}
	if entry.encrypted {
		version = 0x33
	}

	knownSize := opts.SourceSize >= 0
	entry.hasDescriptor = entry.directory || entry.encrypted || entry.compressed || entry.zip64 || !knownSize

	var buffered bytes.Buffer
	if !entry.hasDescriptor && !entry.directory && payload != nil {
		crc, compSize, uncompSize, err := w.drivePayload(&buffered, payload, entry)
		if err != nil {
			return err
		}
		entry.crc32 = crc
		entry.compSize = compSize
		entry.uncompSize = uncompSize
	}

	flags := flagUTF8
	if entry.hasDescriptor {
		flags |= flagSizesInDescriptor
	}
	if entry.encrypted {
		flags |= flagEncrypted
	}

	date, timeField := dosDateTime(entry.modTime)

	var extras bytes.Buffer
	if entry.zip64 {
		extras.Write(buildZip64Extra(nil, nil, nil))
	}
	if entry.encrypted {
		innerMethod := CompressionStore
		if entry.compressed {
			innerMethod = CompressionDeflate
		}
		extras.Write(buildAESExtra(innerMethod))
	}
	if len(opts.ExtraRaw) > 0 {
		extras.Write(opts.ExtraRaw)
	}

	header := make([]byte, localHeaderFixedSize)
	binary.LittleEndian.PutUint32(header[0:4], sigLocalHeader)
	binary.LittleEndian.PutUint16(header[4:6], version)
	binary.LittleEndian.PutUint16(header[6:8], uint16(flags))
	binary.LittleEndian.PutUint16(header[8:10], uint16(method))
	binary.LittleEndian.PutUint16(header[10:12], timeField)
	binary.LittleEndian.PutUint16(header[12:14], date)
	if entry.hasDescriptor {
		binary.LittleEndian.PutUint32(header[14:18], 0) // crc, real value follows in descriptor
		if entry.zip64 {
			binary.LittleEndian.PutUint32(header[18:22], zip64Threshold)
			binary.LittleEndian.PutUint32(header[22:26], zip64Threshold)
		}
	} else {
		binary.LittleEndian.PutUint32(header[14:18], entry.crc32)
		binary.LittleEndian.PutUint32(header[18:22], uint32(entry.compSize))
		binary.LittleEndian.PutUint32(header[22:26], uint32(entry.uncompSize))
	}
	binary.LittleEndian.PutUint16(header[26:28], uint16(len(entry.nameRaw)))
	binary.LittleEndian.PutUint16(header[28:30], uint16(extras.Len()))

	if _, err := target.Write(header); err != nil {
		return newError(KindBadFormat, "Add", err)
	}
	if _, err := target.Write(entry.nameRaw); err != nil {
		return newError(KindBadFormat, "Add", err)
	}
	if _, err := target.Write(extras.Bytes()); err != nil {
		return newError(KindBadFormat, "Add", err)
	}

	if !entry.hasDescriptor {
		if buffered.Len() > 0 {
			if _, err := target.Write(buffered.Bytes()); err != nil {
				return newError(KindBadFormat, "Add", err)
			}
		}
		return nil
	}

	if !entry.directory && payload != nil {
		crc, compSize, uncompSize, err := w.drivePayload(target, payload, entry)
		if err != nil {
			return err
		}
		entry.crc32 = crc
		entry.compSize = compSize
		entry.uncompSize = uncompSize
	}

	descriptor := buildDataDescriptor(entry)
	if _, err := target.Write(descriptor); err != nil {
		return newError(KindBadFormat, "Add", err)
	}
	return nil
}

// drivePayload streams payload through the deflate-direction codec
// pipeline (pooled via the dispatcher when configured, synchronous
// otherwise), writing compressed output to target as it is produced.
func (w *Writer) drivePayload(target io.Writer, payload io.Reader, entry *pendingEntry) (crc uint32, compSize, uncompSize uint64, err error) {
	policy := codec.Policy{
		Compressed: entry.compressed,
		Signed:     !entry.encrypted,
		Encrypted:  entry.encrypted,
		Password:   entry.password,
		Level:      entry.level,
	}

	var stage interface {
		Append([]byte) ([]byte, error)
		Flush() ([]byte, error)
		CRC32() uint32
	}

	if w.cfg.UseWorkers && !isTrivialPolicy(policy) {
		handle, herr := w.dispatcher.Acquire(context.Background(), codec.Deflate, policy)
		if herr != nil {
			return 0, 0, 0, newError(KindBadFormat, "Add", herr)
		}
		stage = handle
	} else {
		pipeline, perr := codec.Assemble(codec.Deflate, policy)
		if perr != nil {
			return 0, 0, 0, newError(KindBadFormat, "Add", perr)
		}
		stage = pipeline
	}

	buf := make([]byte, chunkSize(w.cfg))
	for {
		n, rerr := payload.Read(buf)
		if n > 0 {
			out, aerr := stage.Append(buf[:n])
			if aerr != nil {
				return 0, 0, 0, newError(KindBadFormat, "Add", aerr)
			}
			if len(out) > 0 {
				if _, werr := target.Write(out); werr != nil {
					return 0, 0, 0, newError(KindBadFormat, "Add", werr)
				}
				compSize, _ = sizing.AddUint64(compSize, uint64(len(out)))
			}
			uncompSize, _ = sizing.AddUint64(uncompSize, uint64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, 0, 0, newError(KindBadFormat, "Add", rerr)
		}
	}

	tail, ferr := stage.Flush()
	if ferr != nil {
		return 0, 0, 0, newError(KindBadFormat, "Add", ferr)
	}
	if len(tail) > 0 {
		if _, werr := target.Write(tail); werr != nil {
			return 0, 0, 0, newError(KindBadFormat, "Add", werr)
		}
		compSize, _ = sizing.AddUint64(compSize, uint64(len(tail)))
	}

	if entry.encrypted {
		return 0, compSize, uncompSize, nil // zero CRC stored; HMAC authenticates instead
	}
	return stage.CRC32(), compSize, uncompSize, nil
}

// buildZip64Extra serialises the tag-0x0001 extra. Any nil pointer is
// written as a zero placeholder; used both for the local header (where
// sizes are irrelevant because bit 3 carries them in the descriptor) and,
// with all three slots populated, for the central directory record.
func buildZip64Extra(uncompressed, compressed, localOffset *uint64) []byte {
	buf := make([]byte, 4+8*3)
	binary.LittleEndian.PutUint16(buf[0:2], extraTagZip64)
	binary.LittleEndian.PutUint16(buf[2:4], 8*3)
	put := func(off int, v *uint64) {
		if v != nil {
			binary.LittleEndian.PutUint64(buf[off:off+8], *v)
		}
	}
	put(4, uncompressed)
	put(12, compressed)
	put(20, localOffset)
	return buf
}

// buildAESExtra serialises the WinZip AE-2 extra (tag 0x9901): vendor
// version 2, vendor ID "AE", strength 3 (AES-256), and the wrapped inner
// compression method.
func buildAESExtra(innerMethod Compression) []byte {
	buf := make([]byte, 11)
	binary.LittleEndian.PutUint16(buf[0:2], extraTagAES)
	binary.LittleEndian.PutUint16(buf[2:4], 7)
	binary.LittleEndian.PutUint16(buf[4:6], 2) // AE-2
	buf[6], buf[7] = 'A', 'E'
	buf[8] = 3
	binary.LittleEndian.PutUint16(buf[9:11], uint16(innerMethod))
	return buf
}

func buildDataDescriptor(entry *pendingEntry) []byte {
	if entry.zip64 {
		buf := make([]byte, 24)
		binary.LittleEndian.PutUint32(buf[0:4], sigDataDescriptor)
		binary.LittleEndian.PutUint32(buf[4:8], entry.crc32)
		binary.LittleEndian.PutUint64(buf[8:16], entry.compSize)
		binary.LittleEndian.PutUint64(buf[16:24], entry.uncompSize)
		return buf
	}
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], sigDataDescriptor)
	binary.LittleEndian.PutUint32(buf[4:8], entry.crc32)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(entry.compSize))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(entry.uncompSize))
	return buf
}

// countingWriter tracks bytes written through it while forwarding them to w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
