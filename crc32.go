package zipline

import "hash/crc32"

// CRC accumulates an IEEE-802.3 CRC-32 over any number of Append calls; N
// calls over a partition of bytes yield the same value as one call over the
// concatenation, since hash/crc32 carries state across writes.
type CRC struct {
	h uint32
}

// NewCRC returns a fresh accumulator, initial value implicitly all-ones
// inside hash/crc32's table-driven update (polynomial 0xEDB88320).
func NewCRC() *CRC { return &CRC{} }

// Append folds p into the running value.
func (c *CRC) Append(p []byte) {
	c.h = crc32.Update(c.h, crc32.IEEETable, p)
}

// Get returns the finalised 32-bit value accumulated so far.
func (c *CRC) Get() uint32 { return c.h }

// Reset returns the accumulator to its initial state.
func (c *CRC) Reset() { c.h = 0 }
