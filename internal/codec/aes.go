// Package codec implements the streaming codec stages that the pipeline
// assembler in this package (Assemble) composes per entry: DEFLATE/INFLATE and
// WinZip AE-2 AES-256-CTR + HMAC-SHA1. Stages are stateful and single-use:
// Append any number of times, then Flush exactly once.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // mandated by the WinZip AE-2 format, not used for general hashing
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	aesSaltLen     = 16 // AES-256 strength (3): 16-byte salt
	aesKeyLen      = 32 // AES-256 key material length
	aesPwVerifyLen = 2
	aesMACLen      = 10 // truncated HMAC-SHA1 tag
	aesPBKDF2Iters = 1000
	aesHeaderLen   = aesSaltLen + aesPwVerifyLen
)

// ErrAuthentication is returned by Flush when the HMAC tag does not verify
// or the password-verification value does not match.
var ErrAuthentication = errors.New("codec: aes authentication failed")

// ErrShortCiphertext is returned by Flush when fewer bytes than the fixed
// salt+pwverify+mac overhead were ever appended.
var ErrShortCiphertext = errors.New("codec: aes ciphertext shorter than header+mac overhead")

func deriveAESKeys(password string, salt []byte) (encKey, macKey, pwVerify []byte) {
	material := pbkdf2.Key([]byte(password), salt, aesPBKDF2Iters, 2*aesKeyLen+aesPwVerifyLen, sha1.New)
	return material[:aesKeyLen], material[aesKeyLen : 2*aesKeyLen], material[2*aesKeyLen:]
}

// ctrCounter implements the little-endian, 1-based block counter that the
// WinZip AE format uses (distinct from the big-endian counter convention
// crypto/cipher's stock CTR mode assumes, which is why this is hand-rolled).
type ctrCounter struct {
	block [aes.BlockSize]byte
}

func newCTRCounter() *ctrCounter {
	c := &ctrCounter{}
	c.block[0] = 1
	return c
}

func (c *ctrCounter) next() [aes.BlockSize]byte {
	cur := c.block
	for i := range c.block {
		c.block[i]++
		if c.block[i] != 0 {
			break
		}
	}
	return cur
}

// keystream produces AES-CTR keystream bytes on demand, independent of the
// block size boundaries of individual XOR calls.
type keystream struct {
	block   cipher.Block
	counter *ctrCounter
	buf     [aes.BlockSize]byte
	pos     int // bytes of buf already consumed; == len(buf) means exhausted
}

func newKeystream(block cipher.Block) *keystream {
	return &keystream{block: block, counter: newCTRCounter(), pos: aes.BlockSize}
}

// xor writes len(dst) bytes of src XORed with keystream bytes into dst.
func (k *keystream) xor(dst, src []byte) {
	for i := range dst {
		if k.pos == aes.BlockSize {
			ctr := k.counter.next()
			k.block.Encrypt(k.buf[:], ctr[:])
			k.pos = 0
		}
		dst[i] = src[i] ^ k.buf[k.pos]
		k.pos++
	}
}

// EncryptStage implements the WinZip AE-2 encrypt half of the codec
// contract. NewEncryptStage returns the 18-byte salt+password-verification
// header that must be written to the sink before any Append output.
type EncryptStage struct {
	ks  *keystream
	mac hmacHash
}

// hmacHash narrows hash.Hash to what this package needs, avoiding an import
// cycle concern if callers want to fake it in tests.
type hmacHash interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
}

// NewEncryptStage derives fresh key material from password, generates a
// random salt, and returns the header bytes the caller must emit first.
func NewEncryptStage(password string) (header []byte, stage *EncryptStage, err error) {
	salt := make([]byte, aesSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("codec: generate aes salt: %w", err)
	}
	encKey, macKey, pwVerify := deriveAESKeys(password, salt)

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, nil, fmt.Errorf("codec: aes cipher: %w", err)
	}

	header = make([]byte, 0, aesHeaderLen)
	header = append(header, salt...)
	header = append(header, pwVerify...)

	return header, &EncryptStage{
		ks:  newKeystream(block),
		mac: hmac.New(sha1.New, macKey),
	}, nil
}

// Append encrypts p and folds the ciphertext into the running HMAC.
func (s *EncryptStage) Append(p []byte) ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	out := make([]byte, len(p))
	s.ks.xor(out, p)
	s.mac.Write(out) //nolint:errcheck // hash.Hash.Write never errors
	return out, nil
}

// Flush returns the truncated HMAC-SHA1 tag to append after the ciphertext.
// The returned signature is always 0: AES entries store a zero CRC-32 in
// the header, authenticity coming from the HMAC tag instead.
func (s *EncryptStage) Flush() (tail []byte, signature uint32, err error) {
	full := s.mac.Sum(nil)
	return full[:aesMACLen], 0, nil
}

// DecryptStage implements the WinZip AE-2 decrypt half. It absorbs the
// leading 18-byte salt+pwverify header transparently and withholds the
// trailing 10-byte MAC tag from its output via an internal lookback buffer,
// since the caller streams raw appends without knowing where the payload
// ends until Flush.
type DecryptStage struct {
	password string

	header    []byte // accumulates to aesHeaderLen before key derivation
	ks        *keystream
	mac       hmacHash
	keysReady bool

	pending []byte // up to aesMACLen bytes withheld as potential MAC tag
}

// NewDecryptStage returns a stage ready to absorb the ciphertext stream.
func NewDecryptStage(password string) *DecryptStage {
	return &DecryptStage{password: password, header: make([]byte, 0, aesHeaderLen)}
}

func (s *DecryptStage) initKeys() error {
	salt := s.header[:aesSaltLen]
	wantVerify := s.header[aesSaltLen:aesHeaderLen]
	encKey, macKey, pwVerify := deriveAESKeys(s.password, salt)
	if !hmac.Equal(pwVerify, wantVerify) {
		return ErrAuthentication
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return fmt.Errorf("codec: aes cipher: %w", err)
	}
	s.ks = newKeystream(block)
	s.mac = hmac.New(sha1.New, macKey)
	s.keysReady = true
	return nil
}

// Append feeds raw ciphertext bytes (as read from the source, in original
// stream order) and returns decrypted plaintext ready for the next stage.
func (s *DecryptStage) Append(p []byte) ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}

	if !s.keysReady {
		need := aesHeaderLen - len(s.header)
		n := min(need, len(p))
		s.header = append(s.header, p[:n]...)
		p = p[n:]
		if len(s.header) < aesHeaderLen {
			return nil, nil
		}
		if err := s.initKeys(); err != nil {
			return nil, err
		}
	}
	if len(p) == 0 {
		return nil, nil
	}

	combined := append(s.pending, p...)
	keep := min(aesMACLen, len(combined))
	toProcess := combined[:len(combined)-keep]
	s.pending = append([]byte{}, combined[len(combined)-keep:]...)

	if len(toProcess) == 0 {
		return nil, nil
	}
	s.mac.Write(toProcess) //nolint:errcheck // hash.Hash.Write never errors
	out := make([]byte, len(toProcess))
	s.ks.xor(out, toProcess)
	return out, nil
}

// Flush verifies the withheld trailing bytes as the HMAC tag and returns
// an authentication error (mapped by the caller to invalid-signature) on
// mismatch. The returned signature is always 0, matching the zero-CRC
// convention for AES entries.
func (s *DecryptStage) Flush() (tail []byte, signature uint32, err error) {
	if !s.keysReady || len(s.pending) != aesMACLen {
		return nil, 0, ErrShortCiphertext
	}
	got := s.mac.Sum(nil)[:aesMACLen]
	if !hmac.Equal(got, s.pending) {
		return nil, 0, ErrAuthentication
	}
	return nil, 0, nil
}
