package kernel

import (
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Device memory layout. Every value is little endian in regular (non
// Montgomery) form:
//
//	field element  32 bytes
//	G1 affine      x | y
//	G2 affine      x.A0 | x.A1 | y.A0 | y.A1
//	G1 Jacobian    X | Y | Z
//	G2 Jacobian    X.A0 | X.A1 | Y.A0 | Y.A1 | Z.A0 | Z.A1
//	scalar         32 bytes
//
// The all zero Jacobian encoding (Z = 0) is the point at infinity.
const (
	FieldBytes  = fp.Bytes
	ScalarBytes = fr.Bytes

	G1AffineBytes   = 2 * FieldBytes
	G1JacobianBytes = 3 * FieldBytes
	G2AffineBytes   = 4 * FieldBytes
	G2JacobianBytes = 6 * FieldBytes

	// ScalarBits is the bit length of a scalar.
	ScalarBits = fr.Bits
)

func checkLayout(buf []byte, count, size int) error {
	if len(buf) != count*size {
		return fmt.Errorf("%w: %d bytes for %d elements of %d bytes", ErrLayout, len(buf), count, size)
	}
	return nil
}

func putField(dst []byte, e *fp.Element) {
	fp.LittleEndian.PutElement((*[fp.Bytes]byte)(dst[:fp.Bytes]), *e)
}

func readField(src []byte, e *fp.Element) error {
	v, err := fp.LittleEndian.Element((*[fp.Bytes]byte)(src[:fp.Bytes]))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLayout, err)
	}
	*e = v
	return nil
}

// PutScalars encodes exps into dst, which must hold exactly len(exps) scalars.
func PutScalars(dst []byte, exps []fr.Element) error {
	if err := checkLayout(dst, len(exps), ScalarBytes); err != nil {
		return err
	}
	for i := range exps {
		limbs := exps[i].Bits()
		for j, v := range limbs {
			binary.LittleEndian.PutUint64(dst[i*ScalarBytes+j*8:], v)
		}
	}
	return nil
}

// ReadScalars decodes the scalars in src.
func ReadScalars(dst []fr.Element, src []byte) error {
	if err := checkLayout(src, len(dst), ScalarBytes); err != nil {
		return err
	}
	for i := range dst {
		v, err := fr.LittleEndian.Element((*[fr.Bytes]byte)(src[i*ScalarBytes : (i+1)*ScalarBytes]))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLayout, err)
		}
		dst[i] = v
	}
	return nil
}

// ReadScalarLimbs decodes the scalars in src into their 64 bit limbs, least
// significant first. This is the view a device program has of the exponent
// buffer.
func ReadScalarLimbs(dst [][fr.Limbs]uint64, src []byte) error {
	if err := checkLayout(src, len(dst), ScalarBytes); err != nil {
		return err
	}
	for i := range dst {
		for j := range dst[i] {
			dst[i][j] = binary.LittleEndian.Uint64(src[i*ScalarBytes+j*8:])
		}
	}
	return nil
}

// Digit extracts the width bits of a scalar starting at bit lo.
func Digit(limbs *[fr.Limbs]uint64, lo, width int) uint64 {
	limb, shift := lo/64, uint(lo%64)
	v := limbs[limb] >> shift
	if shift+uint(width) > 64 && limb+1 < fr.Limbs {
		v |= limbs[limb+1] << (64 - shift)
	}
	return v & (1<<uint(width) - 1)
}
