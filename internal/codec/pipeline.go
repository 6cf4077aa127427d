package codec

import "errors"

// ErrCRCMismatch is returned by a Pipeline's Flush when the accumulated
// CRC-32 does not match the expected signature on an inflate pipeline.
var ErrCRCMismatch = errors.New("codec: crc mismatch")

// Direction selects which half of the codec contract a Policy assembles.
type Direction int

const (
	Inflate Direction = iota
	Deflate
)

// Policy mirrors the pipeline-assembly inputs: {compressed?, signed?,
// encrypted?, password, expectedSignature?, level?}.
type Policy struct {
	Compressed  bool
	Signed      bool
	Encrypted   bool
	Password    string
	ExpectedCRC uint32
	Level       int
}

// Stage is one cooperatively-driven unit in the codec pipeline.
type Stage interface {
	Append(p []byte) ([]byte, error)
	Flush() (tail []byte, signature uint32, err error)
}

// headerPrefixStage prepends a fixed header to the first non-empty output
// a wrapped stage produces, so the AES salt+pwverify bytes ride along with
// the very first window written to the sink instead of needing a special
// side channel out of Assemble.
type headerPrefixStage struct {
	header []byte
	inner  Stage
	sent   bool
}

func (s *headerPrefixStage) Append(p []byte) ([]byte, error) {
	out, err := s.inner.Append(p)
	if err != nil {
		return nil, err
	}
	return s.prefix(out), nil
}

func (s *headerPrefixStage) Flush() ([]byte, uint32, error) {
	out, sig, err := s.inner.Flush()
	if err != nil {
		return nil, 0, err
	}
	return s.prefix(out), sig, nil
}

func (s *headerPrefixStage) prefix(out []byte) []byte {
	if s.sent {
		return out
	}
	s.sent = true
	return append(append([]byte{}, s.header...), out...)
}

// Pipeline is the assembled, ordered codec chain for one entry.
type Pipeline struct {
	stages      []Stage
	crcTap      *CRCTap
	checkCRC    bool
	expectedCRC uint32
}

// Assemble builds the fixed-order stage chain for direction and policy.
//
// Inflate path:  input -> decrypt? -> inflate? -> crcTap (signed && !encrypted).
// Deflate path:  plaintext -> crcTap (signed && !encrypted) -> deflate? -> encrypt?.
func Assemble(dir Direction, policy Policy) (*Pipeline, error) {
	p := &Pipeline{}

	switch dir {
	case Inflate:
		if policy.Encrypted {
			p.stages = append(p.stages, NewDecryptStage(policy.Password))
		}
		if policy.Compressed {
			p.stages = append(p.stages, NewInflateStage())
		}
		if policy.Signed && !policy.Encrypted {
			p.crcTap = NewCRCTap()
			p.stages = append(p.stages, p.crcTap)
			p.checkCRC = true
			p.expectedCRC = policy.ExpectedCRC
		}
	case Deflate:
		if policy.Signed && !policy.Encrypted {
			p.crcTap = NewCRCTap()
			p.stages = append(p.stages, p.crcTap)
		}
		if policy.Compressed {
			ds, err := NewDeflateStage(policy.Level)
			if err != nil {
				return nil, err
			}
			p.stages = append(p.stages, ds)
		}
		if policy.Encrypted {
			header, enc, err := NewEncryptStage(policy.Password)
			if err != nil {
				return nil, err
			}
			p.stages = append(p.stages, &headerPrefixStage{header: header, inner: enc})
		}
	}
	return p, nil
}

// Append drives a window of input through every stage in order.
func (p *Pipeline) Append(window []byte) ([]byte, error) {
	data := window
	for _, st := range p.stages {
		out, err := st.Append(data)
		if err != nil {
			return nil, err
		}
		data = out
	}
	return data, nil
}

// Flush finalises every stage in order, cascading each stage's tail
// through the remaining stages so buffered-until-flush stages (like
// InflateStage) still pass their output through downstream stages (like a
// trailing CRC tap). On an inflate pipeline it also verifies the
// accumulated CRC against the expected signature, returning
// ErrCRCMismatch on failure.
func (p *Pipeline) Flush() ([]byte, error) {
	var output []byte
	for i, st := range p.stages {
		tail, _, err := st.Flush()
		if err != nil {
			return nil, err
		}
		data := tail
		for j := i + 1; j < len(p.stages); j++ {
			out, err := p.stages[j].Append(data)
			if err != nil {
				return nil, err
			}
			data = out
		}
		output = append(output, data...)
	}
	if p.checkCRC && p.crcTap.Get() != p.expectedCRC {
		return output, ErrCRCMismatch
	}
	return output, nil
}

// CRC32 returns the accumulated CRC-32, or 0 if the pipeline carries no
// CRC tap (unsigned or encrypted entries).
func (p *Pipeline) CRC32() uint32 {
	if p.crcTap == nil {
		return 0
	}
	return p.crcTap.Get()
}
