package cache

import (
	"bytes"
	"container/list"
	"io"
	"io/fs"
	"sync"
	"time"
)

// MemoryContentCache is an in-process, content-addressed Cache: entries are
// keyed by the SHA-256 hash of their uncompressed bytes, so a cache hit is
// implicitly verified and two callers storing identical content collapse
// onto one copy. Grounded on the same LRU-bounded design as MemoryBlockCache
// in this package, keyed by the real content hash instead of a
// (sourceID, blockIndex) pair since full content is available up front.
type MemoryContentCache struct {
	mu       sync.Mutex
	maxBytes int64
	size     int64
	entries  map[string]*list.Element // hash string -> *contentEntry
	order    *list.List               // most-recently-used at the front
}

type contentEntry struct {
	key  string
	data []byte
}

// NewMemoryContentCache returns a MemoryContentCache bounded at maxBytes
// total cached content bytes (0 = unlimited).
func NewMemoryContentCache(maxBytes int64) *MemoryContentCache {
	return &MemoryContentCache{
		maxBytes: maxBytes,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// MaxBytes returns the configured size limit.
func (c *MemoryContentCache) MaxBytes() int64 { return c.maxBytes }

// SizeBytes returns the current total cached size.
func (c *MemoryContentCache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Get returns an fs.File over the cached content for hash, or false if
// hash is not cached. Each call returns a fresh handle with its own read
// position over the stored bytes; the bytes themselves are not copied.
func (c *MemoryContentCache) Get(hash []byte) (fs.File, bool) {
	key := string(hash)
	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	c.order.MoveToFront(el)
	data := el.Value.(*contentEntry).data
	c.mu.Unlock()
	return newMemFile(data), true
}

// Put stores f's content under hash, reading f to completion. The caller
// retains ownership of f and is responsible for closing it.
func (c *MemoryContentCache) Put(hash []byte, f fs.File) error {
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	key := string(hash)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &contentEntry{key: key, data: data}
	if el, ok := c.entries[key]; ok {
		c.size -= int64(len(el.Value.(*contentEntry).data))
		el.Value = entry
		c.order.MoveToFront(el)
	} else {
		c.entries[key] = c.order.PushFront(entry)
	}
	c.size += int64(len(data))
	if c.maxBytes > 0 {
		c.pruneLocked(c.maxBytes)
	}
	return nil
}

// Delete removes the cached entry for hash, treating a missing entry as a
// no-op.
func (c *MemoryContentCache) Delete(hash []byte) error {
	key := string(hash)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
		c.size -= int64(len(el.Value.(*contentEntry).data))
	}
	return nil
}

// Prune evicts least-recently-used entries until the cache is at or below
// targetBytes, returning the number of bytes freed.
func (c *MemoryContentCache) Prune(targetBytes int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked(targetBytes), nil
}

func (c *MemoryContentCache) pruneLocked(targetBytes int64) int64 {
	var freed int64
	for c.size > targetBytes {
		back := c.order.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*contentEntry)
		c.order.Remove(back)
		delete(c.entries, entry.key)
		c.size -= int64(len(entry.data))
		freed += int64(len(entry.data))
	}
	return freed
}

// memFile adapts a byte slice to fs.File, satisfying Cache.Get's contract.
type memFile struct {
	*bytes.Reader
	size int64
}

func newMemFile(data []byte) *memFile {
	return &memFile{Reader: bytes.NewReader(data), size: int64(len(data))}
}

func (f *memFile) Stat() (fs.FileInfo, error) { return memFileInfo{size: f.size}, nil }
func (f *memFile) Close() error               { return nil }

type memFileInfo struct{ size int64 }

func (i memFileInfo) Name() string       { return "" }
func (i memFileInfo) Size() int64        { return i.size }
func (i memFileInfo) Mode() fs.FileMode  { return 0 }
func (i memFileInfo) ModTime() time.Time { return time.Time{} }
func (i memFileInfo) IsDir() bool        { return false }
func (i memFileInfo) Sys() any           { return nil }
