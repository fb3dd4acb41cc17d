package gpu

import (
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celer-network/gnark-gpu/gpu/kernel"
)

// testOptions size kernels so that small multiexps still loop over several
// dispatches per device.
func testOptions(backend kernel.Backend, opts ...Option) []Option {
	return append([]Option{
		WithBackend(backend),
		WithChunkSize(16),
		WithNumGroups(3),
		WithWindowSize(8),
		WithLocalWorkSize(8),
	}, opts...)
}

func testConfig(t *testing.T, backend kernel.Backend, opts ...Option) Config {
	cfg, err := NewConfig(testOptions(backend, opts...)...)
	require.NoError(t, err)
	return cfg
}

type counter struct {
	n atomic.Int64
}

func (c *counter) Add(n int) error {
	c.n.Add(int64(n))
	return nil
}

// faultyBackend is a host backend whose device fail cannot run programs.
type faultyBackend struct {
	*kernel.HostBackend
	fail int
	err  error
}

func (b faultyBackend) Devices() ([]kernel.Device, error) {
	devices, err := b.HostBackend.Devices()
	if err != nil {
		return nil, err
	}
	devices = slices.Clone(devices)
	devices[b.fail] = faultyDevice{devices[b.fail].(*kernel.HostDevice), b.err}
	return devices, nil
}

type faultyDevice struct {
	*kernel.HostDevice
	err error
}

func (d faultyDevice) Build(src kernel.Source) (kernel.Program, error) {
	p, err := d.HostDevice.Build(src)
	if err != nil {
		return nil, err
	}
	return faultyProgram{Program: p, err: d.err}, nil
}

type faultyProgram struct {
	kernel.Program
	err error
}

func (p faultyProgram) Launch(string, kernel.LaunchArgs) error { return p.err }

// scriptedSignal answers ShouldRelinquish from a script, then repeats its
// last answer.
type scriptedSignal struct {
	answers []bool
	calls   int
	err     error
}

func (s *scriptedSignal) ShouldRelinquish(bool) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	i := min(s.calls, len(s.answers)-1)
	s.calls++
	return s.answers[i], nil
}
