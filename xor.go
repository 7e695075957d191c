package cloakkit

// XorTransform XORs every byte with a repeating key. It is its own inverse.
type XorTransform struct {
	key []byte
}

// NewXor returns an XOR transform over a private copy of key.
func NewXor(key []byte) (*XorTransform, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &XorTransform{key: k}, nil
}

// Name implements Transform.
func (x *XorTransform) Name() string { return "xor" }

// Inverse implements Transform. XOR with the same key undoes itself.
func (x *XorTransform) Inverse() Transform { return x }

// NewStream implements Transform.
func (x *XorTransform) NewStream() Stream {
	return &xorStream{key: x.key}
}

// KeyLen returns the key length in bytes.
func (x *XorTransform) KeyLen() int { return len(x.key) }

type xorStream struct {
	key []byte
	pos int // index into key of the next byte
}

func (s *xorStream) Apply(dst, src []byte) {
	k := len(s.key)
	pos := s.pos
	for i, b := range src {
		dst[i] = b ^ s.key[pos]
		pos++
		if pos == k {
			pos = 0
		}
	}
	s.pos = pos
}
