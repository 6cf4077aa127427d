package cache

import (
	"container/list"
	"fmt"
	"io"
	"sync"
)

// MemoryBlockCache is an in-process, fixed-block, size-bounded BlockCache.
// It is the concrete implementation behind the BlockCache interface,
// grounded on the package's own content-addressed Cache design but keyed
// by (sourceID, blockIndex) instead of a content hash, since block
// contents aren't known until a source is actually read.
type MemoryBlockCache struct {
	mu       sync.Mutex
	maxBytes int64
	size     int64
	blocks   map[blockKey]*list.Element // -> *blockEntry
	order    *list.List                 // most-recently-used at the front
}

type blockKey struct {
	sourceID string
	index    int64
}

type blockEntry struct {
	key  blockKey
	data []byte
}

// NewMemoryBlockCache returns a MemoryBlockCache bounded at maxBytes total
// cached block bytes (0 = unlimited).
func NewMemoryBlockCache(maxBytes int64) *MemoryBlockCache {
	return &MemoryBlockCache{
		maxBytes: maxBytes,
		blocks:   make(map[blockKey]*list.Element),
		order:    list.New(),
	}
}

// MaxBytes returns the configured size limit.
func (c *MemoryBlockCache) MaxBytes() int64 { return c.maxBytes }

// SizeBytes returns the current total cached size.
func (c *MemoryBlockCache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Prune evicts least-recently-used blocks until the cache is at or below
// targetBytes, returning the number of bytes freed.
func (c *MemoryBlockCache) Prune(targetBytes int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var freed int64
	for c.size > targetBytes {
		back := c.order.Back()
		if back == nil {
			break
		}
		freed += c.evict(back)
	}
	return freed, nil
}

// evict must be called with c.mu held.
func (c *MemoryBlockCache) evict(el *list.Element) int64 {
	entry := el.Value.(*blockEntry)
	c.order.Remove(el)
	delete(c.blocks, entry.key)
	c.size -= int64(len(entry.data))
	return int64(len(entry.data))
}

// Wrap returns a ByteSource that serves reads from src through fixed-size
// cached blocks, fetching misses via src's RangeReader capability when
// available, else via ReadAt.
func (c *MemoryBlockCache) Wrap(src ByteSource, opts ...WrapOption) (ByteSource, error) {
	cfg := DefaultWrapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("cache: block size must be positive, got %d", cfg.BlockSize)
	}
	return &cachedSource{cache: c, src: src, cfg: cfg}, nil
}

type cachedSource struct {
	cache *MemoryBlockCache
	src   ByteSource
	cfg   WrapConfig
}

func (s *cachedSource) Size() int64      { return s.src.Size() }
func (s *cachedSource) SourceID() string { return s.src.SourceID() }

// ReadAt serves p from cached blocks, bypassing the cache entirely when
// the request spans more than MaxBlocksPerRead blocks (sequential/bulk
// reads gain nothing from block caching and would just evict useful
// random-access blocks).
func (s *cachedSource) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	blockSize := s.cfg.BlockSize
	firstBlock := off / blockSize
	lastBlock := (off + int64(len(p)) - 1) / blockSize
	spanned := int(lastBlock - firstBlock + 1)

	if s.cfg.MaxBlocksPerRead > 0 && spanned > s.cfg.MaxBlocksPerRead {
		return s.src.ReadAt(p, off)
	}

	total := 0
	for block := firstBlock; block <= lastBlock; block++ {
		data, err := s.cache.fetch(s.src, s.SourceID(), block, blockSize)
		if err != nil {
			return total, err
		}
		blockStart := block * blockSize
		copyStart := off + int64(total) - blockStart
		if copyStart < 0 {
			copyStart = 0
		}
		if copyStart >= int64(len(data)) {
			continue
		}
		total += copy(p[total:], data[copyStart:])
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// fetch returns block index's bytes (shorter than blockSize only for the
// final block of src), populating the cache on miss.
func (c *MemoryBlockCache) fetch(src ByteSource, sourceID string, index, blockSize int64) ([]byte, error) {
	key := blockKey{sourceID: sourceID, index: index}

	c.mu.Lock()
	if el, ok := c.blocks[key]; ok {
		c.order.MoveToFront(el)
		data := el.Value.(*blockEntry).data
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	off := index * blockSize
	data, err := readBlock(src, off, blockSize)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	entry := &blockEntry{key: key, data: data}
	if el, ok := c.blocks[key]; ok {
		c.size -= int64(len(el.Value.(*blockEntry).data))
		el.Value = entry
		c.order.MoveToFront(el)
	} else {
		c.blocks[key] = c.order.PushFront(entry)
	}
	c.size += int64(len(data))
	c.mu.Unlock()

	if c.maxBytes > 0 {
		_, _ = c.Prune(c.maxBytes)
	}
	return data, nil
}

// readBlock reads up to blockSize bytes at off, returning a short slice
// at end of source instead of an error (io.EOF from ReadAt/ReadRange on a
// partial final block is expected, not exceptional).
func readBlock(src ByteSource, off, blockSize int64) ([]byte, error) {
	if rr, ok := src.(RangeReader); ok {
		rc, err := rr.ReadRange(off, blockSize)
		if err != nil && err != io.EOF {
			return nil, err
		}
		if rc == nil {
			return nil, nil
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	buf := make([]byte, blockSize)
	n, err := src.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
