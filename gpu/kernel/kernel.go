package kernel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/celer-network/gnark-gpu/logger"
)

type bufferSet struct {
	bases   Buffer
	buckets Buffer
	results Buffer
}

func (s *bufferSet) free() error {
	var errs []error
	for _, b := range []Buffer{s.bases, s.buckets, s.results} {
		if b != nil {
			errs = append(errs, b.Free())
		}
	}
	return errors.Join(errs...)
}

// SingleKernel runs multiexps of up to MaxN elements on one device. Buffers
// are allocated and the program is built once, at creation.
type SingleKernel struct {
	mu sync.Mutex

	info    DeviceInfo
	params  Params
	program Program
	sets    [numGroupKinds]*bufferSet
	exps    Buffer
	closed  bool

	log zerolog.Logger
}

func NewSingleKernel(dev Device, params Params) (*SingleKernel, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	info := dev.Info()
	log := logger.Logger().With().Str("component", "kernel").Str("device", info.Name).Logger()

	required := params.RequiredBytes()
	if info.MemoryBytes != 0 && required > info.MemoryBytes {
		return nil, fmt.Errorf("%w: %s needs %s, has %s", ErrInsufficientMemory, info.Name,
			units.BytesSize(float64(required)), units.BytesSize(float64(info.MemoryBytes)))
	}

	entries := make([]string, len(params.Groups))
	for i, g := range params.Groups {
		entries[i] = g.EntryPoint()
	}
	start := time.Now()
	program, err := dev.Build(Source{Curve: ecc.BN254, MaxN: params.MaxN, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("build program on %s: %w", info.Name, err)
	}

	k := &SingleKernel{info: info, params: params, program: program, log: log}
	if k.exps, err = dev.Alloc(params.MaxN * ScalarBytes); err != nil {
		k.Close()
		return nil, fmt.Errorf("alloc exponents on %s: %w", info.Name, err)
	}
	for _, g := range params.Groups {
		set := new(bufferSet)
		k.sets[g] = set
		basesSize, bucketsSize, resultsSize := params.bufferSizes(g)
		if set.bases, err = dev.Alloc(basesSize); err == nil {
			if set.buckets, err = dev.Alloc(bucketsSize); err == nil {
				set.results, err = dev.Alloc(resultsSize)
			}
		}
		if err != nil {
			k.Close()
			return nil, fmt.Errorf("alloc %s buffers on %s: %w", g, info.Name, err)
		}
	}

	log.Debug().
		Int("maxN", params.MaxN).
		Int("groups", params.NumGroups).
		Int("windowSize", params.WindowSize).
		Str("memory", units.BytesSize(float64(required))).
		Dur("took", time.Since(start)).
		Msg("multiexp kernel created")
	return k, nil
}

func (k *SingleKernel) Info() DeviceInfo { return k.info }

func (k *SingleKernel) Params() Params { return k.params }

func (k *SingleKernel) MaxN() int { return k.params.MaxN }

// MultiExpG1 computes sum(exps[i] * bases[i]) for i < n on the device.
func (k *SingleKernel) MultiExpG1(bases []bn254.G1Affine, exps []fr.Element, n int) (bn254.G1Jac, error) {
	var res bn254.G1Jac
	if err := k.checkRequest(G1, n, len(bases), len(exps)); err != nil || n == 0 {
		return res, err
	}
	partials := make([]bn254.G1Jac, k.params.WorkItems())
	err := k.dispatch(G1, exps[:n],
		func(dst []byte) error { return PutG1Affines(dst, bases[:n]) },
		func(src []byte) error { return ReadG1Jacobians(partials, src) })
	if err != nil {
		return res, err
	}
	return combineWindows[bn254.G1Jac, bn254.G1Affine](k.params, partials), nil
}

// MultiExpG2 computes sum(exps[i] * bases[i]) for i < n on the device.
func (k *SingleKernel) MultiExpG2(bases []bn254.G2Affine, exps []fr.Element, n int) (bn254.G2Jac, error) {
	var res bn254.G2Jac
	if err := k.checkRequest(G2, n, len(bases), len(exps)); err != nil || n == 0 {
		return res, err
	}
	partials := make([]bn254.G2Jac, k.params.WorkItems())
	err := k.dispatch(G2, exps[:n],
		func(dst []byte) error { return PutG2Affines(dst, bases[:n]) },
		func(src []byte) error { return ReadG2Jacobians(partials, src) })
	if err != nil {
		return res, err
	}
	return combineWindows[bn254.G2Jac, bn254.G2Affine](k.params, partials), nil
}

func (k *SingleKernel) checkRequest(g Group, n, nbBases, nbExps int) error {
	switch {
	case !k.params.hasGroup(g):
		return dispatchError(k.info.Name, fmt.Errorf("%w %s", ErrGroupMismatch, g))
	case n > k.params.MaxN:
		return dispatchError(k.info.Name, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, n, k.params.MaxN))
	case n < 0 || n > nbBases || n > nbExps:
		return dispatchError(k.info.Name, fmt.Errorf("%w: n=%d, %d bases, %d exponents", ErrShortInput, n, nbBases, nbExps))
	}
	return nil
}

func (k *SingleKernel) dispatch(g Group, exps []fr.Element, putBases, readResults func([]byte) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return dispatchError(k.info.Name, ErrClosed)
	}
	if err := k.run(g, exps, putBases, readResults); err != nil {
		return dispatchError(k.info.Name, err)
	}
	return nil
}

func (k *SingleKernel) run(g Group, exps []fr.Element, putBases, readResults func([]byte) error) error {
	start := time.Now()
	n := len(exps)
	set := k.sets[g]

	hostBases := make([]byte, n*g.AffineBytes())
	if err := putBases(hostBases); err != nil {
		return err
	}
	if err := set.bases.Write(hostBases); err != nil {
		return fmt.Errorf("write bases: %w", err)
	}
	hostExps := make([]byte, n*ScalarBytes)
	if err := PutScalars(hostExps, exps); err != nil {
		return err
	}
	if err := k.exps.Write(hostExps); err != nil {
		return fmt.Errorf("write exponents: %w", err)
	}

	args := LaunchArgs{
		Bases:          set.bases,
		Buckets:        set.buckets,
		Results:        set.results,
		Exps:           k.exps,
		N:              uint32(n),
		NumGroups:      uint32(k.params.NumGroups),
		NumWindows:     uint32(k.params.NumWindows()),
		WindowSize:     uint32(k.params.WindowSize),
		GlobalWorkSize: k.params.GlobalWorkSize(),
		LocalWorkSize:  k.params.LocalWorkSize,
	}
	if err := k.program.Launch(g.EntryPoint(), args); err != nil {
		return fmt.Errorf("launch %s: %w", g.EntryPoint(), err)
	}

	results := make([]byte, k.params.WorkItems()*g.JacobianBytes())
	if err := set.results.Read(results); err != nil {
		return fmt.Errorf("read results: %w", err)
	}
	if err := readResults(results); err != nil {
		return err
	}
	k.log.Debug().Str("group", g.String()).Int("n", n).Dur("took", time.Since(start)).Msg("device multiexp")
	return nil
}

// Close frees the device buffers and the program.
func (k *SingleKernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true

	var errs []error
	for i, set := range k.sets {
		if set != nil {
			errs = append(errs, set.free())
			k.sets[i] = nil
		}
	}
	if k.exps != nil {
		errs = append(errs, k.exps.Free())
	}
	if k.program != nil {
		errs = append(errs, k.program.Close())
	}
	return errors.Join(errs...)
}
