package zipline

import (
	"bytes"
	"crypto/sha256"
	"io"
	"io/fs"
	"time"

	"github.com/zipline/zipline/cache"
)

// WithBlockCache wraps the Reader's source in bc before any parsing or
// extraction happens, trading memory for fewer round-trips against
// remote or otherwise expensive ByteSource implementations (notably
// source.Source, the HTTP range-request source).
func WithBlockCache(bc cache.BlockCache, opts ...cache.WrapOption) ReaderOption {
	return func(r *Reader) {
		wrapped, err := bc.Wrap(r.source, opts...)
		if err != nil {
			r.initErr = newError(KindConfigurationError, "WithBlockCache", err)
			return
		}
		r.source = wrapped
	}
}

// WithContentCache memoizes ReadAll's decompressed output in c, keyed by
// the SHA-256 hash of the plaintext (computed after the first extraction,
// since the hash cannot be known before decoding). Repeated ReadAll calls
// for the same entry then skip the codec pipeline entirely on a cache hit,
// and two entries with byte-identical content collapse onto one cached
// copy. Encrypted entries are never cached: a cache hit would let a later
// ReadAll call return plaintext without supplying the password again.
func WithContentCache(c cache.Cache) ReaderOption {
	return func(r *Reader) {
		r.contentCache = c
		r.entryHash = make(map[*Entry][]byte)
	}
}

// cachedContent returns entry's previously-cached plaintext, if this
// Reader has a content cache and has already populated an entry for it.
func (r *Reader) cachedContent(entry *Entry) ([]byte, bool) {
	if r.contentCache == nil {
		return nil, false
	}
	r.hashMu.Lock()
	hash, ok := r.entryHash[entry]
	r.hashMu.Unlock()
	if !ok {
		return nil, false
	}

	f, ok := r.contentCache.Get(hash)
	if !ok {
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, false
	}
	return data, true
}

// storeContent hashes data and stores it in the content cache under that
// hash, remembering the mapping so a later cachedContent call for entry
// can find it again.
func (r *Reader) storeContent(entry *Entry, data []byte) {
	if r.contentCache == nil {
		return
	}
	sum := sha256.Sum256(data)
	hash := sum[:]
	if err := r.contentCache.Put(hash, newReadAllFile(data)); err != nil {
		return
	}
	r.hashMu.Lock()
	r.entryHash[entry] = hash
	r.hashMu.Unlock()
}

// readAllFile adapts an in-memory byte slice to fs.File, satisfying
// cache.Cache.Put's contract without a temporary file on disk.
type readAllFile struct {
	*bytes.Reader
	size int64
}

func newReadAllFile(data []byte) *readAllFile {
	return &readAllFile{Reader: bytes.NewReader(data), size: int64(len(data))}
}

func (f *readAllFile) Stat() (fs.FileInfo, error) { return readAllFileInfo{size: f.size}, nil }
func (f *readAllFile) Close() error               { return nil }

type readAllFileInfo struct{ size int64 }

func (i readAllFileInfo) Name() string       { return "" }
func (i readAllFileInfo) Size() int64        { return i.size }
func (i readAllFileInfo) Mode() fs.FileMode  { return 0 }
func (i readAllFileInfo) ModTime() time.Time { return time.Time{} }
func (i readAllFileInfo) IsDir() bool        { return false }
func (i readAllFileInfo) Sys() any           { return nil }
