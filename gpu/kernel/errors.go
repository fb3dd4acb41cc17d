package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrDispatch is returned for every failed device multiexp. The cause is
	// wrapped alongside it.
	ErrDispatch = errors.New("kernel: dispatch failed")

	ErrGroupMismatch      = errors.New("kernel: no buffers configured for group")
	ErrBatchTooLarge      = errors.New("kernel: batch exceeds kernel capacity")
	ErrShortInput         = errors.New("kernel: fewer bases or exponents than requested")
	ErrLayout             = errors.New("kernel: buffer layout mismatch")
	ErrInsufficientMemory = errors.New("kernel: not enough device memory")
	ErrClosed             = errors.New("kernel: closed")

	// ErrNoDevices is returned when no usable device could be set up.
	ErrNoDevices = errors.New("kernel: no working GPUs found")
)

func dispatchError(device string, err error) error {
	if errors.Is(err, ErrDispatch) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrDispatch, device, err)
}
