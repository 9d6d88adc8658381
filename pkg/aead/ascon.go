package aead

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// Ascon-128 parameters (NIST LWC final round, v1.2).
const (
	asconKeySize   = 16
	asconNonceSize = 16
	asconTagSize   = 16
	asconRate      = 8

	asconIV uint64 = 0x80400c0600000000
)

var errOpen = errors.New("ascon: message authentication failed")

type ascon128 struct {
	k0, k1 uint64
}

// NewAscon128 returns Ascon-128 as a cipher.AEAD. The key must be 16 bytes.
func NewAscon128(key []byte) (cipher.AEAD, error) {
	if len(key) != asconKeySize {
		return nil, fmt.Errorf("ascon-128: key must be %d bytes, got %d", asconKeySize, len(key))
	}
	return &ascon128{
		k0: binary.BigEndian.Uint64(key[0:8]),
		k1: binary.BigEndian.Uint64(key[8:16]),
	}, nil
}

func (a *ascon128) NonceSize() int { return asconNonceSize }

func (a *ascon128) Overhead() int { return asconTagSize }

func (a *ascon128) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	if len(nonce) != asconNonceSize {
		panic("ascon: incorrect nonce length given to Ascon-128")
	}

	ret, out := sliceForAppend(dst, len(plaintext)+asconTagSize)

	var s state
	a.begin(&s, nonce, additionalData)

	pt := plaintext
	for len(pt) >= asconRate {
		s[0] ^= binary.BigEndian.Uint64(pt)
		binary.BigEndian.PutUint64(out, s[0])
		s.permute(6)
		pt = pt[asconRate:]
		out = out[asconRate:]
	}
	s[0] ^= pad(pt)
	for i := range pt {
		out[i] = byte(s[0] >> (56 - 8*i))
	}
	out = out[len(pt):]

	a.finish(&s)
	binary.BigEndian.PutUint64(out[0:8], s[3])
	binary.BigEndian.PutUint64(out[8:16], s[4])
	return ret
}

func (a *ascon128) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != asconNonceSize {
		panic("ascon: incorrect nonce length given to Ascon-128")
	}
	if len(ciphertext) < asconTagSize {
		return nil, errOpen
	}

	tag := ciphertext[len(ciphertext)-asconTagSize:]
	ciphertext = ciphertext[:len(ciphertext)-asconTagSize]

	ret, out := sliceForAppend(dst, len(ciphertext))
	plaintext := out

	var s state
	a.begin(&s, nonce, additionalData)

	ct := ciphertext
	for len(ct) >= asconRate {
		c := binary.BigEndian.Uint64(ct)
		binary.BigEndian.PutUint64(out, s[0]^c)
		s[0] = c
		s.permute(6)
		ct = ct[asconRate:]
		out = out[asconRate:]
	}
	n := len(ct)
	var last uint64
	for i := 0; i < n; i++ {
		out[i] = byte(s[0]>>(56-8*i)) ^ ct[i]
		last |= uint64(ct[i]) << (56 - 8*i)
	}
	mask := ^uint64(0) << (64 - 8*uint(n))
	s[0] = (s[0] &^ mask) | last
	s[0] ^= 0x80 << (56 - 8*uint(n))

	a.finish(&s)
	var expected [asconTagSize]byte
	binary.BigEndian.PutUint64(expected[0:8], s[3])
	binary.BigEndian.PutUint64(expected[8:16], s[4])

	if subtle.ConstantTimeCompare(expected[:], tag) != 1 {
		clear(plaintext)
		return nil, errOpen
	}
	return ret, nil
}

// begin runs initialization and absorbs the associated data, leaving the
// state ready for the first plaintext block.
func (a *ascon128) begin(s *state, nonce, ad []byte) {
	s[0] = asconIV
	s[1] = a.k0
	s[2] = a.k1
	s[3] = binary.BigEndian.Uint64(nonce[0:8])
	s[4] = binary.BigEndian.Uint64(nonce[8:16])
	s.permute(12)
	s[3] ^= a.k0
	s[4] ^= a.k1

	if len(ad) > 0 {
		for len(ad) >= asconRate {
			s[0] ^= binary.BigEndian.Uint64(ad)
			s.permute(6)
			ad = ad[asconRate:]
		}
		s[0] ^= pad(ad)
		s.permute(6)
	}
	s[4] ^= 1
}

func (a *ascon128) finish(s *state) {
	s[1] ^= a.k0
	s[2] ^= a.k1
	s.permute(12)
	s[3] ^= a.k0
	s[4] ^= a.k1
}

// state is the 320-bit Ascon permutation state.
type state [5]uint64

// permute applies the last `rounds` rounds of the 12-round permutation.
func (s *state) permute(rounds int) {
	for r := 12 - rounds; r < 12; r++ {
		s.round(uint64(0xf0 - r*0x0f))
	}
}

func (s *state) round(c uint64) {
	x0, x1, x2, x3, x4 := s[0], s[1], s[2], s[3], s[4]

	x2 ^= c

	// s-box layer
	x0 ^= x4
	x4 ^= x3
	x2 ^= x1
	t0 := ^x0 & x1
	t1 := ^x1 & x2
	t2 := ^x2 & x3
	t3 := ^x3 & x4
	t4 := ^x4 & x0
	x0 ^= t1
	x1 ^= t2
	x2 ^= t3
	x3 ^= t4
	x4 ^= t0
	x1 ^= x0
	x0 ^= x4
	x3 ^= x2
	x2 = ^x2

	// linear diffusion layer
	s[0] = x0 ^ bits.RotateLeft64(x0, -19) ^ bits.RotateLeft64(x0, -28)
	s[1] = x1 ^ bits.RotateLeft64(x1, -61) ^ bits.RotateLeft64(x1, -39)
	s[2] = x2 ^ bits.RotateLeft64(x2, -1) ^ bits.RotateLeft64(x2, -6)
	s[3] = x3 ^ bits.RotateLeft64(x3, -10) ^ bits.RotateLeft64(x3, -17)
	s[4] = x4 ^ bits.RotateLeft64(x4, -7) ^ bits.RotateLeft64(x4, -41)
}

// pad loads a partial block (fewer than 8 bytes) into the high bytes of a
// word and appends the 0x80 padding byte.
func pad(b []byte) uint64 {
	var w uint64
	for i, c := range b {
		w |= uint64(c) << (56 - 8*i)
	}
	return w | 0x80<<(56-8*len(b))
}

// sliceForAppend extends in by n bytes and returns the whole slice and the
// appended tail.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}
