package gpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celer-network/gnark-gpu/cpu"
	"github.com/celer-network/gnark-gpu/gpu/kernel"
	"github.com/celer-network/gnark-gpu/gpu/lock"
	"github.com/celer-network/gnark-gpu/internal/testutils"
)

func TestWorkflowCPUOnly(t *testing.T) {
	assert := require.New(t)

	bases := testutils.G1Points(60, 1)
	exps := testutils.Scalars(50, 2)
	got, err := MultiExpG1(nil, cpu.NewPool(2), bases, exps, 10, 50)
	assert.NoError(err)
	want := testutils.NaiveG1(bases[10:], exps)
	assert.True(got.Equal(&want))

	_, err = MultiExpG1(nil, cpu.NewPool(2), bases, exps, 20, 50)
	assert.ErrorIs(err, ErrInvalidRequest)
}

func TestWorkflowDevices(t *testing.T) {
	assert := require.New(t)

	cfg := testConfig(t, kernel.NewHostBackend(2, 0))
	locked := NewLockedMultiexpKernel(func() (*MultiexpKernel, error) { return Create(cfg) }, nil, false)
	defer locked.Close()

	bases := testutils.G2Points(70, 3)
	exps := testutils.Scalars(70, 4)
	got, err := MultiExpG2(locked, cpu.NewPool(2), bases, exps, 0, 70)
	assert.NoError(err)
	want := testutils.NaiveG2(bases, exps)
	assert.True(got.Equal(&want))
	assert.Equal(Ready, locked.State())
}

func TestWorkflowPreemptedMidway(t *testing.T) {
	assert := require.New(t)

	ex := lock.NewMemoryExclusivity()
	device, _ := lock.Locks(ex, lock.DefaultNames())

	// Get sees a free device, the first dispatch sees the priority process
	signal := &scriptedSignal{answers: []bool{false, true}}
	cfg := testConfig(t, kernel.NewHostBackend(1, 0))
	locked := NewLockedMultiexpKernel(NewDeviceFactory(cfg, device), signal, false)
	defer locked.Close()

	bases := testutils.G1Points(100, 5)
	exps := testutils.Scalars(100, 6)
	got, err := MultiExpG1(locked, cpu.NewPool(2), bases, exps, 0, 100)
	assert.NoError(err)
	want := testutils.NaiveG1(bases, exps)
	assert.True(got.Equal(&want), "preempted multiexp is redone on the CPU")
	assert.Equal(Preempted, locked.State())

	// the device went to the priority process before the CPU run
	g, ok, err := ex.TryAcquireExclusive(lock.DeviceLockName)
	assert.NoError(err)
	assert.True(ok)
	assert.NoError(g.Release())

	k, err := locked.Get()
	assert.NoError(err)
	assert.Nil(k)
	assert.Equal(Preempted, locked.State())
}

func TestWorkflowDispatchFailure(t *testing.T) {
	assert := require.New(t)

	cause := errors.New("device lost")
	cfg := testConfig(t, faultyBackend{kernel.NewHostBackend(1, 0), 0, cause})
	locked := NewLockedMultiexpKernel(func() (*MultiexpKernel, error) { return Create(cfg) }, nil, false)
	defer locked.Close()

	_, err := MultiExpG1(locked, cpu.NewPool(2), testutils.G1Points(100, 7), testutils.Scalars(100, 8), 0, 100)
	assert.ErrorIs(err, kernel.ErrDispatch, "dispatch failures are not hidden by the CPU fallback")
	assert.ErrorIs(err, cause)
}
