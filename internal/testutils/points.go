// Package testutils holds fixtures shared by the multiexp tests.
package testutils

import (
	"math/big"
	"math/rand"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// G1Points returns n distinct deterministic multiples of the G1 generator.
func G1Points(n int, seed int64) []bn254.G1Affine {
	_, _, g1, _ := bn254.Generators()
	r := rand.New(rand.NewSource(seed))
	pts := make([]bn254.G1Affine, n)
	var acc bn254.G1Jac
	acc.FromAffine(&g1)
	var step bn254.G1Jac
	step.ScalarMultiplication(&acc, big.NewInt(r.Int63()|1))
	for i := range pts {
		pts[i].FromJacobian(&acc)
		acc.AddAssign(&step)
	}
	return pts
}

// G2Points returns n distinct deterministic multiples of the G2 generator.
func G2Points(n int, seed int64) []bn254.G2Affine {
	_, _, _, g2 := bn254.Generators()
	r := rand.New(rand.NewSource(seed))
	pts := make([]bn254.G2Affine, n)
	var acc bn254.G2Jac
	acc.FromAffine(&g2)
	var step bn254.G2Jac
	step.ScalarMultiplication(&acc, big.NewInt(r.Int63()|1))
	for i := range pts {
		pts[i].FromJacobian(&acc)
		acc.AddAssign(&step)
	}
	return pts
}

// Scalars returns n deterministic scalars spread over the whole field.
func Scalars(n int, seed int64) []fr.Element {
	r := rand.New(rand.NewSource(seed))
	mod := fr.Modulus()
	s := make([]fr.Element, n)
	v := new(big.Int)
	for i := range s {
		v.Rand(r, mod)
		s[i].SetBigInt(v)
	}
	return s
}

// NaiveG1 computes sum(exps[i] * bases[i]) one scalar multiplication at a time.
func NaiveG1(bases []bn254.G1Affine, exps []fr.Element) bn254.G1Jac {
	var res, tmp bn254.G1Jac
	var e big.Int
	for i := range bases {
		var p bn254.G1Jac
		p.FromAffine(&bases[i])
		exps[i].BigInt(&e)
		tmp.ScalarMultiplication(&p, &e)
		res.AddAssign(&tmp)
	}
	return res
}

// NaiveG2 computes sum(exps[i] * bases[i]) one scalar multiplication at a time.
func NaiveG2(bases []bn254.G2Affine, exps []fr.Element) bn254.G2Jac {
	var res, tmp bn254.G2Jac
	var e big.Int
	for i := range bases {
		var p bn254.G2Jac
		p.FromAffine(&bases[i])
		exps[i].BigInt(&e)
		tmp.ScalarMultiplication(&p, &e)
		res.AddAssign(&tmp)
	}
	return res
}
