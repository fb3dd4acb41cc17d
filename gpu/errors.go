package gpu

import "errors"

var (
	// ErrGPUTaken is returned when a higher priority process claimed the
	// device in the middle of a multiexp. Callers fall back to the CPU.
	ErrGPUTaken = errors.New("gpu: GPU is taken by a high priority process")

	ErrInvalidRequest = errors.New("gpu: invalid multiexp request")
	ErrInvalidConfig  = errors.New("gpu: invalid configuration")
)
