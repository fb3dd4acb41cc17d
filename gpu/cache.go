package gpu

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/celer-network/gnark-gpu/gpu/lock"
	"github.com/celer-network/gnark-gpu/logger"
)

// State is the state of a LockedMultiexpKernel.
type State uint8

const (
	NotBuilt State = iota
	Ready
	Preempted
)

func (s State) String() string {
	switch s {
	case NotBuilt:
		return "not built"
	case Ready:
		return "ready"
	case Preempted:
		return "preempted"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Factory builds a MultiexpKernel.
type Factory func() (*MultiexpKernel, error)

// NewDeviceFactory returns a Factory that takes the device lock and creates
// kernels on every qualified device of cfg. The kernel holds the lock until
// it is closed.
func NewDeviceFactory(cfg Config, device *lock.DeviceLock) Factory {
	return func() (*MultiexpKernel, error) {
		guard, err := device.Lock()
		if err != nil {
			return nil, err
		}
		k, err := Create(cfg)
		if err != nil {
			guard.Unlock()
			return nil, err
		}
		k.guard = guard
		return k, nil
	}
}

// Locked lazily builds a kernel of kind K and tears it down as soon as
// signal asks for the device. It is not safe for concurrent use.
type Locked[K io.Closer] struct {
	factory  func() (K, error)
	signal   lock.Signal
	priority bool

	state  State
	kernel K
	built  bool

	log zerolog.Logger
}

// LockedMultiexpKernel caches a MultiexpKernel.
type LockedMultiexpKernel = Locked[*MultiexpKernel]

// preemptible kernels check the signal between their own dispatches.
type preemptible interface {
	setRelinquish(func() (bool, error))
}

// NewLocked caches kernels built by factory. kind names the kernels in
// logs. priority is true for the process holding the priority lock. A nil
// signal never preempts.
func NewLocked[K io.Closer](kind string, factory func() (K, error), signal lock.Signal, priority bool) *Locked[K] {
	if signal == nil {
		signal = lock.NeverSignal
	}
	return &Locked[K]{
		factory:  factory,
		signal:   signal,
		priority: priority,
		log:      logger.Logger().With().Str("component", kind).Bool("priority", priority).Logger(),
	}
}

func NewLockedMultiexpKernel(factory Factory, signal lock.Signal, priority bool) *LockedMultiexpKernel {
	return NewLocked[*MultiexpKernel]("multiexp", factory, signal, priority)
}

func (l *Locked[K]) State() State { return l.state }

// Get returns the cached kernel, building it if needed. It returns the zero
// K, without error, when the device must be left to a priority process or no
// kernel could be built; the caller then runs on the CPU. Call it right
// before every use.
func (l *Locked[K]) Get() (K, error) {
	var none K
	relinquish, err := l.signal.ShouldRelinquish(l.priority)
	if err != nil {
		return none, fmt.Errorf("priority signal: %w", err)
	}
	if relinquish {
		l.relinquish()
		return none, nil
	}

	if !l.built {
		k, err := l.factory()
		if err != nil {
			if errors.Is(err, lock.ErrLock) {
				return none, err
			}
			l.log.Warn().Err(err).Msg("cannot instantiate GPU kernel, falling back to CPU")
			l.state = NotBuilt
			return none, nil
		}
		if p, ok := any(k).(preemptible); ok {
			p.setRelinquish(func() (bool, error) {
				return l.signal.ShouldRelinquish(l.priority)
			})
		}
		l.kernel, l.built = k, true
		l.state = Ready
	}
	return l.kernel, nil
}

// relinquish frees the cached kernel, and with it the device lock, for a
// priority process.
func (l *Locked[K]) relinquish() {
	if l.built {
		l.log.Warn().Msg("GPU acquired by a high priority process! Freeing up kernels...")
		if err := l.kernel.Close(); err != nil {
			l.log.Error().Err(err).Msg("closing preempted kernel")
		}
		l.drop()
	}
	l.state = Preempted
}

func (l *Locked[K]) drop() {
	var none K
	l.kernel, l.built = none, false
}

// Close frees the cached kernel if any.
func (l *Locked[K]) Close() error {
	if !l.built {
		return nil
	}
	err := l.kernel.Close()
	l.drop()
	l.state = NotBuilt
	return err
}
