// Command gpumsm runs multiexps as one of several processes sharing the
// accelerators of a host. Start a few normal instances, then one with
// -priority, and watch the normal ones hand the devices over and continue on
// the CPU.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/celer-network/gnark-gpu/cpu"
	"github.com/celer-network/gnark-gpu/gpu"
	"github.com/celer-network/gnark-gpu/gpu/icicle"
	"github.com/celer-network/gnark-gpu/gpu/kernel"
	"github.com/celer-network/gnark-gpu/gpu/lock"
	"github.com/celer-network/gnark-gpu/logger"
)

var (
	fN           = flag.Int("n", 1<<16, "number of elements per multiexp")
	fRounds      = flag.Int("rounds", 3, "number of multiexps to run")
	fG2          = flag.Bool("g2", false, "run the multiexps in G2")
	fPriority    = flag.Bool("priority", false, "run as the high priority process")
	fDevices     = flag.Int("devices", 2, "number of host emulated devices")
	fIcicle      = flag.Bool("icicle", false, "use CUDA devices through icicle instead of host devices")
	fTasks       = flag.Int("tasks", 0, "CPU pool size, 0 for one per core")
	fChunk       = flag.Int("chunk", 1<<14, "elements per device dispatch")
	fGroups      = flag.Int("groups", 16, "element groups per dispatch")
	fWindow      = flag.Int("window", 8, "bucket window size in bits")
	fSpeedup     = flag.Float64("speedup", gpu.DefaultSpeedup, "throughput of one device relative to the CPU pool")
	fProfile     = flag.String("profile", "", "load tuning parameters from this CBOR profile")
	fSaveProfile = flag.String("save-profile", "", "write the effective tuning parameters to this file and exit")
	fLockDir     = flag.String("lock-dir", "", "directory of the lock files (default: system temp dir)")
	fNamespace   = flag.String("namespace", "", "lock namespace, processes only coordinate within one")
	fRedis       = flag.String("redis", "", "coordinate through the redis server at this address instead of lock files")
	fVerify      = flag.Bool("verify", true, "check every result against a CPU multiexp")
	fCPUProfile  = flag.String("cpuprofile", "", "write a CPU profile to this file")
	fVerbose     = flag.Bool("v", false, "debug logs")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log := logger.Logger()
		log.Error().Err(err).Msg("gpumsm")
		os.Exit(1)
	}
}

func run() error {
	level := zerolog.InfoLevel
	if *fVerbose {
		level = zerolog.DebugLevel
	}
	logger.Set(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).Level(level).With().Timestamp().Logger())
	log := logger.Logger()

	opts := []gpu.Option{
		gpu.WithChunkSize(*fChunk),
		gpu.WithNumGroups(*fGroups),
		gpu.WithWindowSize(*fWindow),
		gpu.WithSpeedup(*fSpeedup),
	}
	if *fProfile != "" {
		p, err := gpu.LoadProfile(*fProfile)
		if err != nil {
			return err
		}
		opts = append(opts, gpu.WithProfile(p))
	}
	if *fIcicle {
		backend, err := icicle.NewBackend()
		if err != nil {
			return err
		}
		opts = append(opts, gpu.WithBackend(backend), gpu.WithGroups(icicle.Groups...))
	} else {
		opts = append(opts, gpu.WithBackend(kernel.NewHostBackend(*fDevices, 0)))
	}

	var bar *progressbar.ProgressBar
	if !*fVerbose {
		bar = progressbar.Default(int64(*fN)*int64(*fRounds), "multiexp")
		opts = append(opts, gpu.WithProgress(bar))
	}
	cfg, err := gpu.NewConfig(opts...)
	if err != nil {
		return err
	}

	if *fSaveProfile != "" {
		p := gpu.Profile{
			Device:        cfg.Backend.Name(),
			Speedup:       cfg.Speedup,
			NumGroups:     cfg.NumGroups,
			WindowSize:    cfg.WindowSize,
			ChunkSize:     cfg.ChunkSize,
			LocalWorkSize: cfg.LocalWorkSize,
		}
		return p.Save(*fSaveProfile)
	}

	if *fCPUProfile != "" {
		f, err := os.Create(*fCPUProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	var ex lock.Exclusivity
	if *fRedis != "" {
		rex, err := lock.NewRedisExclusivity(lock.RedisConfig{Addr: *fRedis})
		if err != nil {
			return err
		}
		defer rex.Close()
		ex = rex
	} else {
		ex = lock.NewFileExclusivity(*fLockDir)
	}
	deviceLock, priorityLock := lock.Locks(ex, lock.Namespaced(*fNamespace))

	guard, err := priorityLock.LockIfPriority(*fPriority)
	if err != nil {
		return err
	}
	defer guard.Unlock()

	locked := gpu.NewLockedMultiexpKernel(
		gpu.NewDeviceFactory(cfg, deviceLock),
		lock.ConditionalPolicy{Lock: priorityLock},
		*fPriority,
	)
	defer locked.Close()

	pool := cpu.NewPool(*fTasks)
	log.Info().Int("n", *fN).Int("tasks", pool.NbTasks()).Bool("priority", *fPriority).Msg("generating inputs")
	exps, err := randomScalars(*fN)
	if err != nil {
		return err
	}
	multiples, err := randomScalars(*fN)
	if err != nil {
		return err
	}

	if *fG2 {
		_, _, _, g2 := bn254.Generators()
		bases := bn254.BatchScalarMultiplicationG2(&g2, multiples)
		return rounds(locked, func() (bn254.G2Jac, error) {
			return gpu.MultiExpG2(locked, pool, bases, exps, 0, *fN)
		}, func() (bn254.G2Jac, error) {
			return pool.MultiExpG2(bases, nil, exps, nil)
		}, bar)
	}
	_, _, g1, _ := bn254.Generators()
	bases := bn254.BatchScalarMultiplicationG1(&g1, multiples)
	return rounds(locked, func() (bn254.G1Jac, error) {
		return gpu.MultiExpG1(locked, pool, bases, exps, 0, *fN)
	}, func() (bn254.G1Jac, error) {
		return pool.MultiExpG1(bases, nil, exps, nil)
	}, bar)
}

func randomScalars(n int) ([]fr.Element, error) {
	s := make([]fr.Element, n)
	for i := range s {
		if _, err := s[i].SetRandom(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type point[J any] interface {
	*J
	Equal(*J) bool
}

func rounds[J any, PJ point[J]](locked *gpu.LockedMultiexpKernel, multiExp, reference func() (J, error), bar *progressbar.ProgressBar) error {
	log := logger.Logger()
	for i := range *fRounds {
		start := time.Now()
		res, err := multiExp()
		if err != nil {
			return fmt.Errorf("round %d: %w", i, err)
		}
		took := time.Since(start)

		if *fVerify {
			want, err := reference()
			if err != nil {
				return err
			}
			if !PJ(&res).Equal(&want) {
				return errors.New("multiexp result does not match the CPU reference")
			}
		}
		if bar == nil {
			log.Info().Int("round", i).Str("kernel", locked.State().String()).Dur("took", took).Msg("multiexp done")
		}
	}
	if bar != nil {
		bar.Finish()
	}
	return nil
}
