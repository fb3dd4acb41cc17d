// Package cpu computes multiexps on a bounded set of host goroutines. It is
// the fallback whenever no accelerator is usable, and the CPU share of a
// heterogeneous multiexp.
package cpu

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/bits-and-blooms/bitset"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/sync/errgroup"

	"github.com/celer-network/gnark-gpu/internal/utils"
)

// minChunk bounds the number of points handed to one goroutine from below.
const minChunk = 256

var ErrDensityMismatch = errors.New("cpu: density does not match bases and exponents")

// Progress is notified as chunks of a multiexp complete. Add may be called
// concurrently.
type Progress interface {
	Add(n int) error
}

// Pool runs multiexps on at most NbTasks goroutines.
type Pool struct {
	nbTasks int
}

// NewPool returns a pool of nbTasks goroutines, runtime.NumCPU() if
// nbTasks <= 0.
func NewPool(nbTasks int) *Pool {
	if nbTasks <= 0 {
		nbTasks = runtime.NumCPU()
	}
	return &Pool{nbTasks: nbTasks}
}

func (p *Pool) NbTasks() int { return p.nbTasks }

// MultiExpG1 computes sum(exps[i] * bases[j(i)]) where j(i) enumerates the
// bases in order over the exponents i whose density bit is set. A nil
// density means every exponent has a base.
func (p *Pool) MultiExpG1(bases []bn254.G1Affine, density *bitset.BitSet, exps []fr.Element, progress Progress) (bn254.G1Jac, error) {
	scalars, err := dense(len(bases), density, exps)
	if err != nil {
		return bn254.G1Jac{}, err
	}
	return multiExp(p, bases, scalars, progress, func(dst *bn254.G1Jac, b []bn254.G1Affine, s []fr.Element) error {
		_, err := dst.MultiExp(b, s, ecc.MultiExpConfig{NbTasks: 1})
		return err
	})
}

// MultiExpG2 is MultiExpG1 in G2.
func (p *Pool) MultiExpG2(bases []bn254.G2Affine, density *bitset.BitSet, exps []fr.Element, progress Progress) (bn254.G2Jac, error) {
	scalars, err := dense(len(bases), density, exps)
	if err != nil {
		return bn254.G2Jac{}, err
	}
	return multiExp(p, bases, scalars, progress, func(dst *bn254.G2Jac, b []bn254.G2Affine, s []fr.Element) error {
		_, err := dst.MultiExp(b, s, ecc.MultiExpConfig{NbTasks: 1})
		return err
	})
}

// dense returns the exponents paired with a base, in base order.
func dense(nbBases int, density *bitset.BitSet, exps []fr.Element) ([]fr.Element, error) {
	if density == nil {
		if len(exps) != nbBases {
			return nil, fmt.Errorf("%w: %d bases, %d exponents", ErrDensityMismatch, nbBases, len(exps))
		}
		return exps, nil
	}
	if c := density.Count(); c != uint(nbBases) {
		return nil, fmt.Errorf("%w: %d bases, %d set bits", ErrDensityMismatch, nbBases, c)
	}
	scalars := make([]fr.Element, 0, nbBases)
	for i, ok := density.NextSet(0); ok; i, ok = density.NextSet(i + 1) {
		if i >= uint(len(exps)) {
			return nil, fmt.Errorf("%w: bit %d set past %d exponents", ErrDensityMismatch, i, len(exps))
		}
		scalars = append(scalars, exps[i])
	}
	return scalars, nil
}

type adder[J any] interface {
	*J
	AddAssign(*J) *J
}

func multiExp[J, A any, PJ adder[J]](p *Pool, bases []A, scalars []fr.Element, progress Progress, msm func(*J, []A, []fr.Element) error) (J, error) {
	var res J
	if len(bases) == 0 {
		return res, nil
	}
	chunk := max(minChunk, utils.CeilDiv(len(bases), p.nbTasks))
	partials := make([]J, utils.CeilDiv(len(bases), chunk))

	var eg errgroup.Group
	eg.SetLimit(p.nbTasks)
	for i := range partials {
		lo, hi := i*chunk, min(len(bases), (i+1)*chunk)
		eg.Go(func() error {
			if err := msm(&partials[i], bases[lo:hi], scalars[lo:hi]); err != nil {
				return err
			}
			if progress != nil {
				return progress.Add(hi - lo)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return res, err
	}
	for i := range partials {
		PJ(&res).AddAssign(&partials[i])
	}
	return res, nil
}
