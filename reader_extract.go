package zipline

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/zipline/zipline/internal/codec"
	"github.com/zipline/zipline/internal/mover"
	"github.com/zipline/zipline/internal/sizing"
)

// ExtractOption configures a single Extract/ReadAll call.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	password string
	progress mover.ProgressFunc
	ctx      context.Context
}

// WithPassword supplies the password for an encrypted entry.
func WithPassword(password string) ExtractOption {
	return func(c *extractConfig) { c.password = password }
}

// WithExtractProgress registers a progress callback for Extract/ReadAll.
func WithExtractProgress(fn mover.ProgressFunc) ExtractOption {
	return func(c *extractConfig) { c.progress = fn }
}

// WithExtractContext bounds worker acquisition with ctx.
func WithExtractContext(ctx context.Context) ExtractOption {
	return func(c *extractConfig) { c.ctx = ctx }
}

// ReadAll extracts entry's full decompressed/decrypted content into memory.
// If the Reader was constructed with WithContentCache, a repeat call for
// the same (unencrypted) entry is served from the cache without re-running
// the codec pipeline.
func (r *Reader) ReadAll(entry *Entry, opts ...ExtractOption) ([]byte, error) {
	cacheable := r.contentCache != nil && !entry.Encrypted
	if cacheable {
		if data, ok := r.cachedContent(entry); ok {
			return data, nil
		}
	}

	var buf bytes.Buffer
	if err := r.Extract(entry, &buf, opts...); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	if cacheable {
		r.storeContent(entry, data)
	}
	return data, nil
}

// Extract streams entry's decompressed/decrypted content to sink.
func (r *Reader) Extract(entry *Entry, sink io.Writer, opts ...ExtractOption) error {
	cfg := extractConfig{ctx: context.Background()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if entry.Directory {
		return nil
	}
	if entry.Encrypted && cfg.password == "" {
		return newError(KindEncrypted, "Extract", fmt.Errorf("entry %q requires a password", entry.Name))
	}

	payloadOffset, err := r.localPayloadOffset(entry)
	if err != nil {
		return err
	}

	policy := codec.Policy{
		Compressed:  entry.Method == CompressionDeflate,
		Signed:      !entry.Encrypted,
		Encrypted:   entry.Encrypted,
		Password:    cfg.password,
		ExpectedCRC: entry.CRC32,
	}

	length, err := sizing.ToInt64(entry.CompressedSize, fmt.Errorf("compressed size overflow for %q", entry.Name))
	if err != nil {
		return newError(KindBadFormat, "Extract", err)
	}

	if r.cfg.UseWorkers && !isTrivialPolicy(policy) {
		handle, err := r.dispatcher.Acquire(cfg.ctx, codec.Inflate, policy)
		if err != nil {
			return newError(KindBadFormat, "Extract", err)
		}
		_, err = mover.Move(r.source, payloadOffset, length, handle, sink, chunkSize(r.cfg), cfg.progress)
		return wrapExtractErr(err)
	}

	// Worker pool disabled, or the policy needs no codec stage at all
	// (store + unencrypted + unsigned): drain a directly-assembled
	// pipeline in the calling goroutine instead of round-tripping
	// through the dispatcher.
	pipeline, err := codec.Assemble(codec.Inflate, policy)
	if err != nil {
		return newError(KindBadFormat, "Extract", err)
	}
	_, err = mover.Move(r.source, payloadOffset, length, pipeline, sink, chunkSize(r.cfg), cfg.progress)
	return wrapExtractErr(err)
}

func wrapExtractErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, codec.ErrCRCMismatch) || errors.Is(err, codec.ErrAuthentication) || errors.Is(err, codec.ErrShortCiphertext) {
		return newError(KindInvalidSignature, "Extract", err)
	}
	return newError(KindBadFormat, "Extract", err)
}

// localPayloadOffset re-reads the 30-byte local file header at the
// entry's stored offset to compute the true payload start, per §4.5
// "Extract entry data": local_offset + 30 + filenameLength + extraFieldLength.
func (r *Reader) localPayloadOffset(entry *Entry) (int64, error) {
	off, err := sizing.ToInt64(entry.LocalHeaderOffset, fmt.Errorf("local header offset overflow for %q", entry.Name))
	if err != nil {
		return 0, newError(KindBadFormat, "localPayloadOffset", err)
	}
	buf := make([]byte, localHeaderFixedSize)
	if _, rerr := r.source.ReadAt(buf, off); rerr != nil {
		return 0, newError(KindBadFormat, "localPayloadOffset", rerr)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != sigLocalHeader {
		return 0, newError(KindBadFormat, "localPayloadOffset", fmt.Errorf("bad local file header signature for %q", entry.Name))
	}
	nameLen := binary.LittleEndian.Uint16(buf[26:28])
	extraLen := binary.LittleEndian.Uint16(buf[28:30])
	return off + localHeaderFixedSize + int64(nameLen) + int64(extraLen), nil
}

func chunkSize(cfg Config) int { return effectiveChunkSize(cfg) }

func isTrivialPolicy(p codec.Policy) bool {
	return !p.Compressed && !p.Encrypted && !p.Signed
}
