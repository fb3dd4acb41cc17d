package lock

import (
	"github.com/rs/zerolog"

	"github.com/celer-network/gnark-gpu/logger"
)

// DeviceLock serializes accelerator use across processes.
type DeviceLock struct {
	ex   Exclusivity
	name string
	log  zerolog.Logger
}

func NewDeviceLock(ex Exclusivity, name string) *DeviceLock {
	return &DeviceLock{
		ex:   ex,
		name: name,
		log:  logger.Logger().With().Str("component", "lock").Str("lock", name).Logger(),
	}
}

// Lock blocks until the device is ours.
func (l *DeviceLock) Lock() (*DeviceGuard, error) {
	l.log.Info().Msg("acquiring GPU lock")
	g, err := l.ex.AcquireExclusive(l.name)
	if err != nil {
		return nil, err
	}
	l.log.Info().Msg("GPU lock acquired")
	return &DeviceGuard{g: g, log: l.log}, nil
}

// DeviceGuard is a held device lock.
type DeviceGuard struct {
	g        Guard
	released bool
	log      zerolog.Logger
}

// Unlock releases the device lock. It is safe on a nil guard and may be
// called more than once.
func (g *DeviceGuard) Unlock() error {
	if g == nil || g.released {
		return nil
	}
	g.released = true
	err := g.g.Release()
	g.log.Info().Msg("GPU lock released")
	return err
}
