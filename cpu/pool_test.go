package cpu

import (
	"sync/atomic"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/celer-network/gnark-gpu/internal/testutils"
)

type counter struct {
	n atomic.Int64
}

func (c *counter) Add(n int) error {
	c.n.Add(int64(n))
	return nil
}

func TestPoolMultiExpG1(t *testing.T) {
	for _, nbTasks := range []int{1, 3, 0} {
		assert := require.New(t)
		pool := NewPool(nbTasks)
		assert.Positive(pool.NbTasks())

		for _, n := range []int{0, 1, 300, 1000} {
			bases := testutils.G1Points(n, 1)
			exps := testutils.Scalars(n, 2)

			var progress counter
			got, err := pool.MultiExpG1(bases, nil, exps, &progress)
			assert.NoError(err)
			want := testutils.NaiveG1(bases, exps)
			assert.True(got.Equal(&want), "tasks=%d n=%d", nbTasks, n)
			assert.EqualValues(n, progress.n.Load())
		}
	}
}

func TestPoolMultiExpG2(t *testing.T) {
	assert := require.New(t)

	bases := testutils.G2Points(300, 3)
	exps := testutils.Scalars(300, 4)
	got, err := NewPool(2).MultiExpG2(bases, nil, exps, nil)
	assert.NoError(err)
	want := testutils.NaiveG2(bases, exps)
	assert.True(got.Equal(&want))
}

func TestPoolDensity(t *testing.T) {
	assert := require.New(t)

	exps := testutils.Scalars(10, 5)
	density := bitset.New(10)
	for _, i := range []uint{0, 3, 4, 9} {
		density.Set(i)
	}
	bases := testutils.G1Points(4, 6)

	got, err := NewPool(2).MultiExpG1(bases, density, exps, nil)
	assert.NoError(err)
	want := testutils.NaiveG1(bases, []fr.Element{exps[0], exps[3], exps[4], exps[9]})
	assert.True(got.Equal(&want))

	_, err = NewPool(2).MultiExpG1(bases[:3], density, exps, nil)
	assert.ErrorIs(err, ErrDensityMismatch)

	density.Set(12)
	_, err = NewPool(2).MultiExpG1(testutils.G1Points(5, 6), density, exps, nil)
	assert.ErrorIs(err, ErrDensityMismatch)

	_, err = NewPool(2).MultiExpG1(bases, nil, exps, nil)
	assert.ErrorIs(err, ErrDensityMismatch)
}
