// Package cache provides optional caching for ZIP archive byte sources and
// decompressed entry content.
//
// BlockCache wraps a ByteSource in fixed-size cached blocks, which matters
// most for sources with expensive random reads (source.Source, backed by
// HTTP range requests). Cache is the separate, content-addressed side of
// this: MemoryContentCache stores decompressed entry bytes keyed by their
// SHA-256 hash, wired into a Reader via zipline.WithContentCache so that
// repeated ReadAll calls for the same entry skip re-running the codec
// pipeline, and identical content across different entries or archives
// collapses onto one cached copy.
package cache
