// Package gpu schedules multiexps over the CPU and every usable accelerator,
// and keeps accelerator kernels alive only while no higher priority process
// claims the device.
package gpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/celer-network/gnark-gpu/cpu"
	"github.com/celer-network/gnark-gpu/gpu/kernel"
	"github.com/celer-network/gnark-gpu/gpu/lock"
	"github.com/celer-network/gnark-gpu/logger"
)

// MultiexpKernel splits multiexps between the CPU pool and its device
// kernels.
type MultiexpKernel struct {
	kernels  []*kernel.SingleKernel
	speedup  float64
	progress cpu.Progress

	// guard is the device lock held on behalf of kernels, released by Close.
	guard *lock.DeviceGuard

	checkMu    sync.Mutex
	relinquish func() (bool, error)

	log zerolog.Logger
}

// New schedules over the given kernels. With no kernel every multiexp runs
// on the CPU.
func New(cfg Config, kernels ...*kernel.SingleKernel) *MultiexpKernel {
	return &MultiexpKernel{
		kernels:  kernels,
		speedup:  cfg.Speedup,
		progress: cfg.Progress,
		log:      logger.Logger().With().Str("component", "multiexp").Logger(),
	}
}

// Create builds one kernel per qualified device of cfg.Backend. Devices that
// fail to qualify or to set up are skipped; kernel.ErrNoDevices is returned
// when none is left.
func Create(cfg Config) (*MultiexpKernel, error) {
	log := logger.Logger().With().Str("component", "multiexp").Logger()
	if cfg.Backend == nil {
		return nil, fmt.Errorf("%w: no backend", kernel.ErrNoDevices)
	}
	devices, err := cfg.Backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", kernel.ErrNoDevices, cfg.Backend.Name(), err)
	}

	params := cfg.kernelParams()
	var kernels []*kernel.SingleKernel
	for _, d := range devices {
		info := d.Info()
		if err := cfg.qualify(info); err != nil {
			log.Warn().Err(err).Str("device", info.Name).Msg("device disqualified")
			continue
		}
		k, err := kernel.NewSingleKernel(d, params)
		if err != nil {
			log.Warn().Err(err).Str("device", info.Name).Msg("cannot set up device")
			continue
		}
		kernels = append(kernels, k)
	}
	if len(kernels) == 0 {
		return nil, kernel.ErrNoDevices
	}

	log.Info().Int("devices", len(kernels)).Str("backend", cfg.Backend.Name()).Msg("multiexp: working device(s) selected")
	for i, k := range kernels {
		info := k.Info()
		log.Info().Int("index", i).Str("name", info.Name).Str("vendor", info.Vendor).Str("driver", info.Driver).Msg("multiexp: device")
	}
	return New(cfg, kernels...), nil
}

func (m *MultiexpKernel) NumDevices() int { return len(m.kernels) }

// Devices describes the devices in use.
func (m *MultiexpKernel) Devices() []kernel.DeviceInfo {
	infos := make([]kernel.DeviceInfo, len(m.kernels))
	for i, k := range m.kernels {
		infos[i] = k.Info()
	}
	return infos
}

// setRelinquish installs the check run before every device dispatch.
func (m *MultiexpKernel) setRelinquish(f func() (bool, error)) {
	m.checkMu.Lock()
	m.relinquish = f
	m.checkMu.Unlock()
}

// shouldStop serializes relinquish checks: two concurrent checks of the
// priority lock would see each other as a priority holder.
func (m *MultiexpKernel) shouldStop() (bool, error) {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()
	if m.relinquish == nil {
		return false, nil
	}
	return m.relinquish()
}

// MultiExpG1 computes sum(exps[i] * bases[skip+i]) for i < n.
func (m *MultiexpKernel) MultiExpG1(pool *cpu.Pool, bases []bn254.G1Affine, exps []fr.Element, skip, n int) (bn254.G1Jac, error) {
	return multiExp(m, bases, exps, skip, n,
		func(b []bn254.G1Affine, e []fr.Element) (bn254.G1Jac, error) {
			return pool.MultiExpG1(b, nil, e, m.progress)
		},
		(*kernel.SingleKernel).MultiExpG1)
}

// MultiExpG2 computes sum(exps[i] * bases[skip+i]) for i < n.
func (m *MultiexpKernel) MultiExpG2(pool *cpu.Pool, bases []bn254.G2Affine, exps []fr.Element, skip, n int) (bn254.G2Jac, error) {
	return multiExp(m, bases, exps, skip, n,
		func(b []bn254.G2Affine, e []fr.Element) (bn254.G2Jac, error) {
			return pool.MultiExpG2(b, nil, e, m.progress)
		},
		(*kernel.SingleKernel).MultiExpG2)
}

// Close frees every kernel and releases the device lock when held.
func (m *MultiexpKernel) Close() error {
	errs := make([]error, 0, len(m.kernels)+1)
	for _, k := range m.kernels {
		errs = append(errs, k.Close())
	}
	m.kernels = nil
	errs = append(errs, m.guard.Unlock())
	m.guard = nil
	return errors.Join(errs...)
}

func checkRequest(nbBases, nbExps, skip, n int) error {
	if skip < 0 || n < 0 || skip > nbBases || n > nbBases-skip || n > nbExps {
		return fmt.Errorf("%w: skip=%d n=%d with %d bases and %d exponents", ErrInvalidRequest, skip, n, nbBases, nbExps)
	}
	return nil
}

type adder[J any] interface {
	*J
	AddAssign(*J) *J
}

func multiExp[J, A any, PJ adder[J]](
	m *MultiexpKernel,
	bases []A, exps []fr.Element, skip, n int,
	onCPU func([]A, []fr.Element) (J, error),
	onDevice func(*kernel.SingleKernel, []A, []fr.Element, int) (J, error),
) (J, error) {
	var res J
	if err := checkRequest(len(bases), len(exps), skip, n); err != nil {
		return res, err
	}
	bases, exps = bases[skip:skip+n], exps[:n]

	start := time.Now()
	plan := Split(n, len(m.kernels), m.speedup)
	cpuBases, gpuBases := bases[:plan.CPU], bases[plan.CPU:]
	cpuExps, gpuExps := exps[:plan.CPU], exps[plan.CPU:]
	m.log.Debug().
		Int("n", n).
		Int("cpu", plan.CPU).
		Int("gpu", plan.GPU).
		Int("chunk", plan.Chunk).
		Dur("took", time.Since(start)).
		Msg("chunking")

	partials := make([]J, 1+plan.Chunks())
	var eg errgroup.Group
	for i := range plan.Chunks() {
		k := m.kernels[i]
		lo, hi := i*plan.Chunk, min(plan.GPU, (i+1)*plan.Chunk)
		eg.Go(func() error {
			r, err := runOnDevice[J, A, PJ](m, k, gpuBases[lo:hi], gpuExps[lo:hi], onDevice)
			partials[1+i] = r
			return err
		})
	}
	eg.Go(func() error {
		start := time.Now()
		r, err := onCPU(cpuBases, cpuExps)
		if err != nil {
			return err
		}
		m.log.Debug().Int("n", len(cpuBases)).Dur("took", time.Since(start)).Msg("CPU multiexp")
		partials[0] = r
		return nil
	})
	if err := eg.Wait(); err != nil {
		return res, err
	}

	for i := range partials {
		PJ(&res).AddAssign(&partials[i])
	}
	m.log.Debug().Int("n", n).Int("devices", plan.Chunks()).Dur("took", time.Since(start)).Msg("multiexp")
	return res, nil
}

// runOnDevice feeds bases to k in MaxN sized dispatches.
func runOnDevice[J, A any, PJ adder[J]](m *MultiexpKernel, k *kernel.SingleKernel, bases []A, exps []fr.Element, onDevice func(*kernel.SingleKernel, []A, []fr.Element, int) (J, error)) (J, error) {
	var acc J
	start := time.Now()
	maxN := k.MaxN()
	for lo := 0; lo < len(bases); lo += maxN {
		stop, err := m.shouldStop()
		if err != nil {
			return acc, err
		}
		if stop {
			return acc, ErrGPUTaken
		}
		hi := min(len(bases), lo+maxN)
		r, err := onDevice(k, bases[lo:hi], exps[lo:hi], hi-lo)
		if err != nil {
			return acc, err
		}
		PJ(&acc).AddAssign(&r)
		if m.progress != nil {
			if err := m.progress.Add(hi - lo); err != nil {
				return acc, err
			}
		}
	}
	m.log.Debug().Str("device", k.Info().Name).Int("n", len(bases)).Dur("took", time.Since(start)).Msg("single GPU multiexp")
	return acc, nil
}
