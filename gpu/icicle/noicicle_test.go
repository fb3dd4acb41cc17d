//go:build !icicle

package icicle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celer-network/gnark-gpu/gpu/kernel"
)

func TestNoIcicle(t *testing.T) {
	assert := require.New(t)
	assert.False(HasIcicle)

	_, err := NewBackend()
	assert.Error(err)

	var b kernel.Backend = &Backend{}
	_, err = b.Devices()
	assert.Error(err)
}
