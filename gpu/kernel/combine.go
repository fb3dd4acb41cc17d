package kernel

import "github.com/consensys/gnark-crypto/ecc/bn254/fr"

// jacobian is implemented by *bn254.G1Jac and *bn254.G2Jac, with A the
// matching affine type.
type jacobian[J, A any] interface {
	*J
	AddAssign(*J) *J
	AddMixed(*A) *J
	DoubleAssign() *J
}

// combineWindows folds the per (group, window) partial sums of a dispatch,
// laid out as partials[group*numWindows+window], into the multiexp result.
func combineWindows[J, A any, PJ jacobian[J, A]](p Params, partials []J) J {
	var acc J
	numWindows := p.NumWindows()
	for w := numWindows - 1; w >= 0; w-- {
		for range p.WindowWidth(w) {
			PJ(&acc).DoubleAssign()
		}
		for g := 0; g < p.NumGroups; g++ {
			PJ(&acc).AddAssign(&partials[g*numWindows+w])
		}
	}
	return acc
}

// bucketSum is the bucket method for one work item: every base whose digit
// in the window [lo, lo+width) is d lands in bucket d-1, then the buckets
// are reduced with a running sum so that bucket d-1 is counted d times.
func bucketSum[J, A any, PJ jacobian[J, A]](bases []A, scalars [][fr.Limbs]uint64, lo, width int, buckets []J) J {
	for i := range buckets {
		buckets[i] = *new(J)
	}
	for i := range bases {
		if d := Digit(&scalars[i], lo, width); d != 0 {
			PJ(&buckets[d-1]).AddMixed(&bases[i])
		}
	}

	var running, res J
	for j := len(buckets) - 1; j >= 0; j-- {
		PJ(&running).AddAssign(&buckets[j])
		PJ(&res).AddAssign(&running)
	}
	return res
}
