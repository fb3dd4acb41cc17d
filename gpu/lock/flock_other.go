//go:build !unix

package lock

import (
	"errors"
	"os"
)

var exitSignals = []os.Signal{os.Interrupt}

func signalExitCode(os.Signal) int {
	return 1
}

var errFlockUnsupported = errors.New("lock: advisory file locks are not supported on this platform")

func lockFile(_ *os.File, _ bool) (bool, error) {
	return false, errFlockUnsupported
}

func unlockFile(_ *os.File) error {
	return errFlockUnsupported
}
