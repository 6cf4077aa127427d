package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundtrip(t *testing.T, plaintext []byte, policy Policy) []byte {
	t.Helper()

	enc, err := Assemble(Deflate, policy)
	require.NoError(t, err)
	var compressed []byte
	out, err := enc.Append(plaintext)
	require.NoError(t, err)
	compressed = append(compressed, out...)
	tail, err := enc.Flush()
	require.NoError(t, err)
	compressed = append(compressed, tail...)

	decPolicy := policy
	decPolicy.ExpectedCRC = enc.CRC32()
	dec, err := Assemble(Inflate, decPolicy)
	require.NoError(t, err)
	var plain []byte
	out, err = dec.Append(compressed)
	require.NoError(t, err)
	plain = append(plain, out...)
	tail, err = dec.Flush()
	require.NoError(t, err)
	plain = append(plain, tail...)

	return plain
}

func TestPipeline_StoreSigned_Roundtrip(t *testing.T) {
	t.Parallel()
	want := []byte("the quick brown fox jumps over the lazy dog")
	got := roundtrip(t, want, Policy{Signed: true})
	assert.Equal(t, want, got)
}

func TestPipeline_DeflateSigned_Roundtrip(t *testing.T) {
	t.Parallel()
	want := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	got := roundtrip(t, want, Policy{Compressed: true, Signed: true, Level: 6})
	assert.Equal(t, want, got)
}

func TestPipeline_EncryptedDeflate_Roundtrip(t *testing.T) {
	t.Parallel()
	want := []byte("secret payload that should round-trip through aes and deflate")
	policy := Policy{Compressed: true, Encrypted: true, Password: "correct horse", Level: 6}

	enc, err := Assemble(Deflate, policy)
	require.NoError(t, err)
	out, err := enc.Append(want)
	require.NoError(t, err)
	ciphertext := append([]byte{}, out...)
	tail, err := enc.Flush()
	require.NoError(t, err)
	ciphertext = append(ciphertext, tail...)
	assert.Zero(t, enc.CRC32(), "AES-encrypted entries never accumulate a CRC tap")

	dec, err := Assemble(Inflate, policy)
	require.NoError(t, err)
	out, err = dec.Append(ciphertext)
	require.NoError(t, err)
	plain := append([]byte{}, out...)
	tail, err = dec.Flush()
	require.NoError(t, err)
	plain = append(plain, tail...)
	assert.Equal(t, want, plain)
}

func TestPipeline_Inflate_CRCMismatch(t *testing.T) {
	t.Parallel()
	want := []byte("integrity matters")
	policy := Policy{Signed: true}

	enc, err := Assemble(Deflate, policy)
	require.NoError(t, err)
	out, _ := enc.Append(want)
	compressed := append([]byte{}, out...)
	tail, err := enc.Flush()
	require.NoError(t, err)
	compressed = append(compressed, tail...)

	badPolicy := policy
	badPolicy.ExpectedCRC = enc.CRC32() + 1
	dec, err := Assemble(Inflate, badPolicy)
	require.NoError(t, err)
	_, err = dec.Append(compressed)
	require.NoError(t, err)
	_, err = dec.Flush()
	assert.ErrorIs(t, err, ErrCRCMismatch)
}
