package gpu

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/celer-network/gnark-gpu/cpu"
	"github.com/celer-network/gnark-gpu/logger"
)

// MultiExpG1 computes sum(exps[i] * bases[skip+i]) for i < n, on the
// devices of locked when it yields a kernel and on pool otherwise. A
// multiexp preempted by a priority process gives the devices up and is
// redone on the CPU.
func MultiExpG1(locked *LockedMultiexpKernel, pool *cpu.Pool, bases []bn254.G1Affine, exps []fr.Element, skip, n int) (bn254.G1Jac, error) {
	return withFallback(locked, skip, n, len(bases), len(exps),
		func(k *MultiexpKernel) (bn254.G1Jac, error) {
			return k.MultiExpG1(pool, bases, exps, skip, n)
		},
		func() (bn254.G1Jac, error) {
			return pool.MultiExpG1(bases[skip:skip+n], nil, exps[:n], nil)
		})
}

// MultiExpG2 is MultiExpG1 in G2.
func MultiExpG2(locked *LockedMultiexpKernel, pool *cpu.Pool, bases []bn254.G2Affine, exps []fr.Element, skip, n int) (bn254.G2Jac, error) {
	return withFallback(locked, skip, n, len(bases), len(exps),
		func(k *MultiexpKernel) (bn254.G2Jac, error) {
			return k.MultiExpG2(pool, bases, exps, skip, n)
		},
		func() (bn254.G2Jac, error) {
			return pool.MultiExpG2(bases[skip:skip+n], nil, exps[:n], nil)
		})
}

func withFallback[J any](locked *LockedMultiexpKernel, skip, n, nbBases, nbExps int, onKernel func(*MultiexpKernel) (J, error), onCPU func() (J, error)) (J, error) {
	if err := checkRequest(nbBases, nbExps, skip, n); err != nil {
		var zero J
		return zero, err
	}
	if locked != nil {
		k, err := locked.Get()
		if err != nil {
			var zero J
			return zero, err
		}
		if k != nil {
			res, err := onKernel(k)
			if !errors.Is(err, ErrGPUTaken) {
				return res, err
			}
			locked.relinquish()
			log := logger.Logger()
			log.Warn().Str("component", "multiexp").Msg("GPU taken by a high priority process, continuing on CPU")
		}
	}
	return onCPU()
}
