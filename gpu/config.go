package gpu

import (
	"fmt"
	"math"

	"github.com/blang/semver/v4"

	"github.com/celer-network/gnark-gpu/cpu"
	"github.com/celer-network/gnark-gpu/gpu/kernel"
)

// DefaultSpeedup is the throughput of one device relative to the whole CPU
// pool.
const DefaultSpeedup = 3.1

// Config configures device discovery, kernel sizing and scheduling.
type Config struct {
	// Backend enumerates the devices. Without one no kernel is created and
	// every multiexp runs on the CPU.
	Backend kernel.Backend

	Speedup       float64
	NumGroups     int
	WindowSize    int
	ChunkSize     int
	LocalWorkSize int
	Groups        []kernel.Group

	// MinDriverVersion disqualifies devices with an older or unparsable
	// driver. The zero version accepts every device.
	MinDriverVersion semver.Version

	Progress cpu.Progress
}

// Option is a functional option of NewConfig.
type Option func(*Config) error

func DefaultConfig() Config {
	return Config{
		Speedup:       DefaultSpeedup,
		NumGroups:     kernel.DefaultNumGroups,
		WindowSize:    kernel.DefaultWindowSize,
		ChunkSize:     kernel.DefaultMaxN,
		LocalWorkSize: kernel.DefaultLocalWorkSize,
		Groups:        []kernel.Group{kernel.G1, kernel.G2},
	}
}

// NewConfig applies opts on top of DefaultConfig.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.kernelParams().Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func (cfg Config) kernelParams() kernel.Params {
	return kernel.Params{
		MaxN:          cfg.ChunkSize,
		NumGroups:     cfg.NumGroups,
		WindowSize:    cfg.WindowSize,
		LocalWorkSize: cfg.LocalWorkSize,
		Groups:        cfg.Groups,
	}
}

// qualify rejects devices whose driver is older than MinDriverVersion.
func (cfg Config) qualify(info kernel.DeviceInfo) error {
	if cfg.MinDriverVersion.Equals(semver.Version{}) {
		return nil
	}
	v, err := semver.ParseTolerant(info.Driver)
	if err != nil {
		return fmt.Errorf("driver version %q: %w", info.Driver, err)
	}
	if v.LT(cfg.MinDriverVersion) {
		return fmt.Errorf("driver %s older than %s", v, cfg.MinDriverVersion)
	}
	return nil
}

func WithBackend(b kernel.Backend) Option {
	return func(cfg *Config) error {
		cfg.Backend = b
		return nil
	}
}

// WithSpeedup sets the assumed throughput of one device relative to the CPU
// pool.
func WithSpeedup(s float64) Option {
	return func(cfg *Config) error {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: speedup %v", ErrInvalidConfig, s)
		}
		cfg.Speedup = s
		return nil
	}
}

func WithNumGroups(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("%w: %d groups", ErrInvalidConfig, n)
		}
		cfg.NumGroups = n
		return nil
	}
}

func WithWindowSize(w int) Option {
	return func(cfg *Config) error {
		if w <= 0 || w > kernel.MaxWindowSize {
			return fmt.Errorf("%w: window size %d", ErrInvalidConfig, w)
		}
		cfg.WindowSize = w
		return nil
	}
}

// WithChunkSize sets the largest number of elements sent to a device in one
// dispatch.
func WithChunkSize(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, n)
		}
		cfg.ChunkSize = n
		return nil
	}
}

func WithLocalWorkSize(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("%w: local work size %d", ErrInvalidConfig, n)
		}
		cfg.LocalWorkSize = n
		return nil
	}
}

// WithGroups restricts the groups kernels allocate buffers for.
func WithGroups(groups ...kernel.Group) Option {
	return func(cfg *Config) error {
		if len(groups) == 0 {
			return fmt.Errorf("%w: no group", ErrInvalidConfig)
		}
		cfg.Groups = groups
		return nil
	}
}

func WithMinDriverVersion(v string) Option {
	return func(cfg *Config) error {
		want, err := semver.ParseTolerant(v)
		if err != nil {
			return fmt.Errorf("%w: driver version: %w", ErrInvalidConfig, err)
		}
		cfg.MinDriverVersion = want
		return nil
	}
}

// WithProgress reports multiexp progress, in elements, to p.
func WithProgress(p cpu.Progress) Option {
	return func(cfg *Config) error {
		cfg.Progress = p
		return nil
	}
}

// WithProfile applies the non zero fields of a tuning profile.
func WithProfile(p Profile) Option {
	return func(cfg *Config) error {
		var opts []Option
		if p.Speedup != 0 {
			opts = append(opts, WithSpeedup(p.Speedup))
		}
		if p.NumGroups != 0 {
			opts = append(opts, WithNumGroups(p.NumGroups))
		}
		if p.WindowSize != 0 {
			opts = append(opts, WithWindowSize(p.WindowSize))
		}
		if p.ChunkSize != 0 {
			opts = append(opts, WithChunkSize(p.ChunkSize))
		}
		if p.LocalWorkSize != 0 {
			opts = append(opts, WithLocalWorkSize(p.LocalWorkSize))
		}
		for _, opt := range opts {
			if err := opt(cfg); err != nil {
				return fmt.Errorf("profile %q: %w", p.Device, err)
			}
		}
		return nil
	}
}
