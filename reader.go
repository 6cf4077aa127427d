package zipline

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/zipline/zipline/cache"
	"github.com/zipline/zipline/internal/worker"
)

const (
	sigEOCD        = 0x06054b50
	sigZip64Locator = 0x07064b50
	sigZip64EOCD    = 0x06064b50
	sigCentralDir   = 0x02014b50
	sigLocalHeader  = 0x04034b50

	eocdFixedSize       = 22
	zip64LocatorSize    = 20
	zip64EOCDFixedSize  = 56
	centralDirFixedSize = 46
	localHeaderFixedSize = 30

	maxCommentLength = 65536
)

// Reader parses and extracts entries from a ZIP archive over a random
// access ByteSource. A Reader does not own its source.
type Reader struct {
	source     ByteSource
	cfg        Config
	dispatcher *worker.Dispatcher
	digestTee  *digestTee

	initErr   error
	parseOnce sync.Once
	parseErr  error
	group     singleflight.Group

	entries    []*Entry
	comment    string
	commentRaw []byte

	contentCache cache.Cache
	hashMu       sync.Mutex
	entryHash    map[*Entry][]byte // memoizes the content hash ReadAll last cached this entry under
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderConfig overrides the process-wide configuration snapshot a
// Reader would otherwise capture at construction.
func WithReaderConfig(cfg Config) ReaderOption {
	return func(r *Reader) { r.cfg = cfg }
}

// NewReader constructs a Reader over source. No I/O happens until Entries
// or Extract is first invoked.
func NewReader(source ByteSource, opts ...ReaderOption) *Reader {
	tee := newDigestTee()
	r := &Reader{source: wrapSource(source, tee), cfg: Snapshot(), digestTee: tee}
	for _, opt := range opts {
		opt(r)
	}
	r.dispatcher = worker.New(r.cfg.MaxWorkers)
	return r
}

// Source returns the underlying ByteSource.
func (r *Reader) Source() ByteSource { return r.source }

// Comment returns the archive-level comment, decoded per the EOCD's own
// (always CP437, since the EOCD carries no per-record flag) encoding rule.
// Calling code must call Entries before Comment returns a meaningful value.
func (r *Reader) Comment() string { return r.comment }

// Entries parses (once, memoized) and returns the archive's entry records
// in central-directory order. Concurrent callers collapse onto one parse
// via a singleflight group.
func (r *Reader) Entries() ([]*Entry, error) {
	v, err, _ := r.group.Do("entries", func() (any, error) {
		r.parseOnce.Do(func() {
			r.parseErr = r.parse()
		})
		return r.entries, r.parseErr
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Entry), nil
}

func (r *Reader) parse() error {
	if r.initErr != nil {
		return r.initErr
	}

	eocdOff, entryCount16, cdSize32, cdOffset32, err := r.locateEOCD()
	if err != nil {
		return err
	}

	entryCount := uint64(entryCount16)
	cdSize := uint64(cdSize32)
	cdOffset := uint64(cdOffset32)

	if entryCount16 == 0xFFFF || cdOffset32 == 0xFFFFFFFF || cdSize32 == 0xFFFFFFFF {
		entryCount, cdSize, cdOffset, err = r.locateZip64(eocdOff)
		if err != nil {
			return err
		}
	}

	entries, err := r.parseCentralDirectory(int64(cdOffset), int64(cdSize), entryCount) //nolint:gosec // bounded by archive size
	if err != nil {
		return err
	}
	r.entries = entries
	return nil
}

// locateEOCD implements the backward byte-scan for signature 50 4B 05 06,
// first trying the minimum 22-byte window, then extending up to
// 22+65536 bytes (the maximum comment length), per §4.5.
func (r *Reader) locateEOCD() (offset int64, entryCount, cdSize, cdOffset uint32, err error) {
	size := r.source.Size()
	if size < eocdFixedSize {
		return 0, 0, 0, 0, newError(KindBadFormat, "locateEOCD", fmt.Errorf("source too short (%d bytes)", size))
	}

	window := int64(eocdFixedSize)
	maxWindow := int64(eocdFixedSize + maxCommentLength)
	if maxWindow > size {
		maxWindow = size
	}

	for {
		buf := make([]byte, window)
		start := size - window
		if _, rerr := r.source.ReadAt(buf, start); rerr != nil && rerr != io.EOF {
			return 0, 0, 0, 0, newError(KindBadFormat, "locateEOCD", rerr)
		}

		for i := len(buf) - eocdFixedSize; i >= 0; i-- {
			if binary.LittleEndian.Uint32(buf[i:i+4]) == sigEOCD {
				rec := buf[i:]
				entryCount = uint32(binary.LittleEndian.Uint16(rec[10:12]))
				cdSize = binary.LittleEndian.Uint32(rec[12:16])
				cdOffset = binary.LittleEndian.Uint32(rec[16:20])
				commentLen := binary.LittleEndian.Uint16(rec[20:22])
				commentRaw := rec[22:]
				if int(commentLen) <= len(commentRaw) {
					commentRaw = commentRaw[:commentLen]
				}
				r.commentRaw = append([]byte{}, commentRaw...)
				r.comment = decodeCP437(r.commentRaw)
				return start + int64(i), entryCount, cdSize, cdOffset, nil
			}
		}

		if window >= maxWindow {
			return 0, 0, 0, 0, newError(KindBadFormat, "locateEOCD", fmt.Errorf("end of central directory record not found"))
		}
		window = maxWindow
	}
}

// locateZip64 reads the 20-byte locator immediately preceding the EOCD and
// the 56-byte ZIP64 EOCD record it points to, per §4.5 "Detect ZIP64".
func (r *Reader) locateZip64(eocdOffset int64) (entryCount, cdSize, cdOffset uint64, err error) {
	locatorOffset := eocdOffset - zip64LocatorSize
	if locatorOffset < 0 {
		return 0, 0, 0, newError(KindBadFormat, "locateZip64", fmt.Errorf("negative locator offset"))
	}
	buf := make([]byte, zip64LocatorSize)
	if _, rerr := r.source.ReadAt(buf, locatorOffset); rerr != nil {
		return 0, 0, 0, newError(KindBadFormat, "locateZip64", rerr)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != sigZip64Locator {
		return 0, 0, 0, newError(KindBadFormat, "locateZip64", fmt.Errorf("bad zip64 locator signature"))
	}
	zip64EOCDOffset := int64(binary.LittleEndian.Uint64(buf[8:16])) //nolint:gosec // bounded by archive size

	rec := make([]byte, zip64EOCDFixedSize)
	if _, rerr := r.source.ReadAt(rec, zip64EOCDOffset); rerr != nil {
		return 0, 0, 0, newError(KindBadFormat, "locateZip64", rerr)
	}
	if binary.LittleEndian.Uint32(rec[0:4]) != sigZip64EOCD {
		return 0, 0, 0, newError(KindBadFormat, "locateZip64", fmt.Errorf("bad zip64 eocd signature"))
	}

	totalEntries := binary.LittleEndian.Uint64(rec[32:40])
	size := binary.LittleEndian.Uint64(rec[40:48])
	offset := binary.LittleEndian.Uint64(rec[48:56])
	return totalEntries, size, offset, nil
}
