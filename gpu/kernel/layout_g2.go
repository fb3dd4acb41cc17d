package kernel

import "github.com/consensys/gnark-crypto/ecc/bn254"

func putE2(dst []byte, e *bn254.E2) {
	putField(dst, &e.A0)
	putField(dst[FieldBytes:], &e.A1)
}

func readE2(src []byte, e *bn254.E2) error {
	if err := readField(src, &e.A0); err != nil {
		return err
	}
	return readField(src[FieldBytes:], &e.A1)
}

func PutG2Affines(dst []byte, points []bn254.G2Affine) error {
	if err := checkLayout(dst, len(points), G2AffineBytes); err != nil {
		return err
	}
	for i := range points {
		b := dst[i*G2AffineBytes:]
		putE2(b, &points[i].X)
		putE2(b[2*FieldBytes:], &points[i].Y)
	}
	return nil
}

func ReadG2Affines(dst []bn254.G2Affine, src []byte) error {
	if err := checkLayout(src, len(dst), G2AffineBytes); err != nil {
		return err
	}
	for i := range dst {
		b := src[i*G2AffineBytes:]
		if err := readE2(b, &dst[i].X); err != nil {
			return err
		}
		if err := readE2(b[2*FieldBytes:], &dst[i].Y); err != nil {
			return err
		}
	}
	return nil
}

func PutG2Jacobians(dst []byte, points []bn254.G2Jac) error {
	if err := checkLayout(dst, len(points), G2JacobianBytes); err != nil {
		return err
	}
	for i := range points {
		b := dst[i*G2JacobianBytes:]
		putE2(b, &points[i].X)
		putE2(b[2*FieldBytes:], &points[i].Y)
		putE2(b[4*FieldBytes:], &points[i].Z)
	}
	return nil
}

func ReadG2Jacobians(dst []bn254.G2Jac, src []byte) error {
	if err := checkLayout(src, len(dst), G2JacobianBytes); err != nil {
		return err
	}
	for i := range dst {
		b := src[i*G2JacobianBytes:]
		if err := readE2(b, &dst[i].X); err != nil {
			return err
		}
		if err := readE2(b[2*FieldBytes:], &dst[i].Y); err != nil {
			return err
		}
		if err := readE2(b[4*FieldBytes:], &dst[i].Z); err != nil {
			return err
		}
	}
	return nil
}
