package codec

import "hash/crc32"

// CRCTap folds every Append window into a running CRC-32 while passing
// bytes through unchanged; Flush reports the accumulated value as the
// signature. Used to compute (write path) or verify (read path) the
// IEEE-802.3 CRC over plaintext, bypassed entirely for AES entries per the
// zero-CRC convention.
type CRCTap struct {
	h uint32
}

func NewCRCTap() *CRCTap { return &CRCTap{} }

func (c *CRCTap) Append(p []byte) ([]byte, error) {
	if len(p) > 0 {
		c.h = crc32.Update(c.h, crc32.IEEETable, p)
	}
	return p, nil
}

func (c *CRCTap) Flush() (tail []byte, signature uint32, err error) {
	return nil, c.h, nil
}

// Get returns the accumulated CRC-32 value.
func (c *CRCTap) Get() uint32 {
	return c.h
}
