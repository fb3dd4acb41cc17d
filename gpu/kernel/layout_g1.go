package kernel

import "github.com/consensys/gnark-crypto/ecc/bn254"

func PutG1Affines(dst []byte, points []bn254.G1Affine) error {
	if err := checkLayout(dst, len(points), G1AffineBytes); err != nil {
		return err
	}
	for i := range points {
		b := dst[i*G1AffineBytes:]
		putField(b, &points[i].X)
		putField(b[FieldBytes:], &points[i].Y)
	}
	return nil
}

func ReadG1Affines(dst []bn254.G1Affine, src []byte) error {
	if err := checkLayout(src, len(dst), G1AffineBytes); err != nil {
		return err
	}
	for i := range dst {
		b := src[i*G1AffineBytes:]
		if err := readField(b, &dst[i].X); err != nil {
			return err
		}
		if err := readField(b[FieldBytes:], &dst[i].Y); err != nil {
			return err
		}
	}
	return nil
}

func PutG1Jacobians(dst []byte, points []bn254.G1Jac) error {
	if err := checkLayout(dst, len(points), G1JacobianBytes); err != nil {
		return err
	}
	for i := range points {
		b := dst[i*G1JacobianBytes:]
		putField(b, &points[i].X)
		putField(b[FieldBytes:], &points[i].Y)
		putField(b[2*FieldBytes:], &points[i].Z)
	}
	return nil
}

func ReadG1Jacobians(dst []bn254.G1Jac, src []byte) error {
	if err := checkLayout(src, len(dst), G1JacobianBytes); err != nil {
		return err
	}
	for i := range dst {
		b := src[i*G1JacobianBytes:]
		if err := readField(b, &dst[i].X); err != nil {
			return err
		}
		if err := readField(b[FieldBytes:], &dst[i].Y); err != nil {
			return err
		}
		if err := readField(b[2*FieldBytes:], &dst[i].Z); err != nil {
			return err
		}
	}
	return nil
}
