//go:build !icicle

package icicle

import (
	"errors"

	"github.com/celer-network/gnark-gpu/gpu/kernel"
)

const HasIcicle = false

var Groups = []kernel.Group{kernel.G1}

var errNotCompiled = errors.New("icicle requested but program compiled without 'icicle' build tag")

type Backend struct{}

// NewBackend always fails; callers run on the CPU or on host devices.
func NewBackend() (*Backend, error) {
	return nil, errNotCompiled
}

func (b *Backend) Name() string { return "icicle" }

func (b *Backend) Devices() ([]kernel.Device, error) {
	return nil, errNotCompiled
}
