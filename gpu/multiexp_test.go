package gpu

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celer-network/gnark-gpu/cpu"
	"github.com/celer-network/gnark-gpu/gpu/kernel"
	"github.com/celer-network/gnark-gpu/internal/testutils"
)

func TestMultiexpKernelG1(t *testing.T) {
	bases := testutils.G1Points(215, 1)
	exps := testutils.Scalars(205, 2)
	pool := cpu.NewPool(2)

	for _, devices := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("devices=%d", devices), func(t *testing.T) {
			assert := require.New(t)

			var progress counter
			cfg := testConfig(t, kernel.NewHostBackend(devices, 0), WithProgress(&progress))
			m := New(cfg)
			if devices > 0 {
				var err error
				m, err = Create(cfg)
				assert.NoError(err)
			}
			defer m.Close()
			assert.Equal(devices, m.NumDevices())

			for _, tc := range []struct{ skip, n int }{{0, 0}, {0, 1}, {5, 200}, {10, 205}} {
				got, err := m.MultiExpG1(pool, bases, exps, tc.skip, tc.n)
				assert.NoError(err)
				want := testutils.NaiveG1(bases[tc.skip:tc.skip+tc.n], exps[:tc.n])
				assert.True(got.Equal(&want), "skip=%d n=%d", tc.skip, tc.n)
			}
			assert.EqualValues(0+1+200+205, progress.n.Load())
		})
	}
}

func TestMultiexpKernelG2(t *testing.T) {
	assert := require.New(t)

	m, err := Create(testConfig(t, kernel.NewHostBackend(2, 0)))
	assert.NoError(err)
	defer m.Close()

	bases := testutils.G2Points(80, 3)
	exps := testutils.Scalars(80, 4)
	got, err := m.MultiExpG2(cpu.NewPool(2), bases, exps, 3, 77)
	assert.NoError(err)
	want := testutils.NaiveG2(bases[3:], exps[:77])
	assert.True(got.Equal(&want))
}

func TestMultiexpKernelOrderIndependent(t *testing.T) {
	assert := require.New(t)

	cfg := testConfig(t, kernel.NewHostBackend(3, 0))
	m, err := Create(cfg)
	assert.NoError(err)
	defer m.Close()

	bases := testutils.G1Points(150, 5)
	exps := testutils.Scalars(150, 6)
	pool := cpu.NewPool(2)
	want, err := m.MultiExpG1(pool, bases, exps, 0, 150)
	assert.NoError(err)

	reversed := slices.Clone(m.kernels)
	slices.Reverse(reversed)
	got, err := New(cfg, reversed...).MultiExpG1(pool, bases, exps, 0, 150)
	assert.NoError(err)
	assert.True(got.Equal(&want))
}

func TestMultiexpKernelFailingDevice(t *testing.T) {
	assert := require.New(t)

	cause := errors.New("device lost")
	m, err := Create(testConfig(t, faultyBackend{kernel.NewHostBackend(3, 0), 1, cause}))
	assert.NoError(err)
	defer m.Close()

	_, err = m.MultiExpG1(cpu.NewPool(2), testutils.G1Points(100, 7), testutils.Scalars(100, 8), 0, 100)
	assert.ErrorIs(err, kernel.ErrDispatch)
	assert.ErrorIs(err, cause)
}

func TestMultiexpKernelInvalidRequest(t *testing.T) {
	m := New(DefaultConfig())
	bases := testutils.G1Points(10, 9)
	exps := testutils.Scalars(10, 10)
	pool := cpu.NewPool(1)

	for _, tc := range []struct{ skip, n int }{{-1, 2}, {0, -1}, {11, 0}, {5, 6}, {0, 11}} {
		_, err := m.MultiExpG1(pool, bases, exps, tc.skip, tc.n)
		require.ErrorIs(t, err, ErrInvalidRequest, "skip=%d n=%d", tc.skip, tc.n)
	}
}

func TestMultiexpKernelRelinquish(t *testing.T) {
	assert := require.New(t)

	m, err := Create(testConfig(t, kernel.NewHostBackend(2, 0)))
	assert.NoError(err)
	defer m.Close()

	m.setRelinquish(func() (bool, error) { return true, nil })
	_, err = m.MultiExpG1(cpu.NewPool(2), testutils.G1Points(100, 11), testutils.Scalars(100, 12), 0, 100)
	assert.ErrorIs(err, ErrGPUTaken)

	checkErr := errors.New("signal check failed")
	m.setRelinquish(func() (bool, error) { return false, checkErr })
	_, err = m.MultiExpG1(cpu.NewPool(2), testutils.G1Points(100, 11), testutils.Scalars(100, 12), 0, 100)
	assert.ErrorIs(err, checkErr)
}

func TestCreate(t *testing.T) {
	assert := require.New(t)

	_, err := Create(testConfig(t, nil))
	assert.ErrorIs(err, kernel.ErrNoDevices)

	_, err = Create(testConfig(t, kernel.NewHostBackend(0, 0)))
	assert.ErrorIs(err, kernel.ErrNoDevices)

	_, err = Create(testConfig(t, kernel.NewHostBackend(2, 0), WithMinDriverVersion("2.0")))
	assert.ErrorIs(err, kernel.ErrNoDevices, "old drivers are disqualified")

	_, err = Create(testConfig(t, kernel.NewHostBackend(2, 1024)))
	assert.ErrorIs(err, kernel.ErrNoDevices, "devices too small are skipped")

	m, err := Create(testConfig(t, kernel.NewHostBackend(2, 0), WithMinDriverVersion("v0.9")))
	assert.NoError(err)
	assert.Len(m.Devices(), 2)
	assert.Equal("host-1", m.Devices()[1].Name)
	assert.NoError(m.Close())
}
