package zipline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeCP437_LowHalfIsASCII(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "report.txt", decodeCP437([]byte("report.txt")))
}

func TestDecodeCP437_HighHalf(t *testing.T) {
	t.Parallel()
	// 0x80 -> 'Ç', the first entry of the table.
	assert.Equal(t, "Ç", decodeCP437([]byte{0x80}))
	// 0xFF -> U+00A0 (no-break space), the last entry of the table.
	assert.Equal(t, " ", decodeCP437([]byte{0xFF}))
}

func TestDecodeName_DispatchesOnUTF8Bit(t *testing.T) {
	t.Parallel()

	raw := []byte{0x80} // 'Ç' under CP437, mojibake under naive ASCII

	assert.Equal(t, "Ç", decodeName(raw, 0))
	assert.Equal(t, string(raw), decodeName(raw, flagUTF8))
}
