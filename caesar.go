package cloakkit

import "strconv"

const alphabetSize = 26

// CaesarTransform rotates ASCII letters within their case. Every other byte
// passes through unchanged.
type CaesarTransform struct {
	shift int
}

// NewCaesar returns a Caesar transform. Any integer shift is accepted and
// reduced modulo 26, so -1 and 25 are the same transform.
func NewCaesar(shift int) *CaesarTransform {
	s := shift % alphabetSize
	if s < 0 {
		s += alphabetSize
	}
	return &CaesarTransform{shift: s}
}

// Rot13 returns the self-inverse Caesar transform with shift 13.
func Rot13() *CaesarTransform {
	return NewCaesar(13)
}

// Shift returns the normalised shift in [0, 26).
func (c *CaesarTransform) Shift() int { return c.shift }

// Name implements Transform.
func (c *CaesarTransform) Name() string {
	if c.shift == 13 {
		return "rot13"
	}
	return "caesar(" + strconv.Itoa(c.shift) + ")"
}

// Inverse implements Transform: shift s is undone by (26 - s) mod 26.
func (c *CaesarTransform) Inverse() Transform {
	return NewCaesar(alphabetSize - c.shift)
}

// NewStream implements Transform. The mapping is position independent, so
// the stream keeps only a lookup table.
func (c *CaesarTransform) NewStream() Stream {
	s := &caesarStream{}
	for i := range s.table {
		s.table[i] = CaesarByte(byte(i), c.shift)
	}
	return s
}

type caesarStream struct {
	table [256]byte
}

func (s *caesarStream) Apply(dst, src []byte) {
	for i, b := range src {
		dst[i] = s.table[b]
	}
}

// CaesarByte rotates a single byte by shift positions.
func CaesarByte(b byte, shift int) byte {
	shift %= alphabetSize
	if shift < 0 {
		shift += alphabetSize
	}
	switch {
	case b >= 'A' && b <= 'Z':
		return 'A' + byte((int(b-'A')+shift)%alphabetSize)
	case b >= 'a' && b <= 'z':
		return 'a' + byte((int(b-'a')+shift)%alphabetSize)
	default:
		return b
	}
}
