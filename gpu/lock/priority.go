package lock

import (
	"github.com/rs/zerolog"

	"github.com/celer-network/gnark-gpu/logger"
)

// PriorityLock is held by a high priority process for as long as it wants
// lower priority processes to keep off the accelerator.
type PriorityLock struct {
	ex   Exclusivity
	name string
	log  zerolog.Logger
}

func NewPriorityLock(ex Exclusivity, name string) *PriorityLock {
	return &PriorityLock{
		ex:   ex,
		name: name,
		log:  logger.Logger().With().Str("component", "lock").Str("lock", name).Logger(),
	}
}

// Lock blocks until the priority lock is held.
func (l *PriorityLock) Lock() (*PriorityGuard, error) {
	l.log.Info().Msg("acquiring priority lock")
	g, err := l.ex.AcquireExclusive(l.name)
	if err != nil {
		return nil, err
	}
	l.log.Info().Msg("priority lock acquired")
	return &PriorityGuard{g: g, log: l.log}, nil
}

// LockIfPriority is Lock for a priority caller and a no-op returning a nil
// guard otherwise.
func (l *PriorityLock) LockIfPriority(isPriority bool) (*PriorityGuard, error) {
	if !isPriority {
		return nil, nil
	}
	return l.Lock()
}

// CanUseDevice reports whether the caller may use the accelerator: always
// for the priority holder, otherwise only while nobody holds the priority
// lock.
func (l *PriorityLock) CanUseDevice(priority bool) (bool, error) {
	if priority {
		return true, nil
	}
	return l.free()
}

// IsSignaled reports whether the priority lock is currently held by another
// holder. Any other acquisition counts, including one made through a
// different PriorityLock in this process.
func (l *PriorityLock) IsSignaled() (bool, error) {
	free, err := l.free()
	return !free, err
}

func (l *PriorityLock) free() (bool, error) {
	g, ok, err := l.ex.TryAcquireExclusive(l.name)
	if err != nil || !ok {
		return false, err
	}
	return true, g.Release()
}

// PriorityGuard is a held priority lock.
type PriorityGuard struct {
	g   Guard
	log zerolog.Logger
}

// Unlock is safe on a nil guard, as returned by LockIfPriority(false).
func (g *PriorityGuard) Unlock() error {
	if g == nil {
		return nil
	}
	err := g.g.Release()
	g.log.Info().Msg("priority lock released")
	return err
}

// Signal tells an accelerator user whether to give the device back.
// priority is true when the caller itself holds the priority lock.
type Signal interface {
	ShouldRelinquish(priority bool) (bool, error)
}

// FlagPolicy relinquishes whenever CanUseDevice is false.
type FlagPolicy struct {
	Lock *PriorityLock
}

func (p FlagPolicy) ShouldRelinquish(priority bool) (bool, error) {
	ok, err := p.Lock.CanUseDevice(priority)
	return !ok, err
}

// ConditionalPolicy relinquishes when a non priority caller sees the
// priority lock held.
type ConditionalPolicy struct {
	Lock *PriorityLock
}

func (p ConditionalPolicy) ShouldRelinquish(priority bool) (bool, error) {
	if priority {
		return false, nil
	}
	return p.Lock.IsSignaled()
}

type neverSignal struct{}

func (neverSignal) ShouldRelinquish(bool) (bool, error) { return false, nil }

// NeverSignal never asks for the device back.
var NeverSignal Signal = neverSignal{}
