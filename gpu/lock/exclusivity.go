// Package lock arbitrates the accelerator between cooperating processes.
//
// Two named locks are used per namespace: the device lock, held by whoever
// currently owns the GPU, and the priority lock, held by a high priority
// process to ask normal priority holders to give the GPU back.
package lock

import "errors"

// ErrLock wraps every failure of the underlying lock service. Callers must
// treat it as fatal, never as "held elsewhere".
var ErrLock = errors.New("lock: exclusivity service failure")

// Guard is a held exclusive grant. Release may be called more than once.
type Guard interface {
	Release() error
}

// Exclusivity grants named exclusive locks to cooperating actors.
type Exclusivity interface {
	// AcquireExclusive blocks until name is held exclusively by the caller.
	AcquireExclusive(name string) (Guard, error)
	// TryAcquireExclusive never blocks; ok is false when name is held by
	// someone else.
	TryAcquireExclusive(name string) (g Guard, ok bool, err error)
}
