//go:build unix

package lock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

var exitSignals = []os.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGQUIT, unix.SIGTSTP}

// signalExitCode is the shell convention for a process killed by s.
func signalExitCode(s os.Signal) int {
	if sig, ok := s.(unix.Signal); ok {
		return 128 + int(sig)
	}
	return 1
}

// lockFile takes an exclusive flock on f. When block is false and the lock
// is held elsewhere it returns false and no error.
func lockFile(f *os.File, block bool) (bool, error) {
	how := unix.LOCK_EX
	if !block {
		how |= unix.LOCK_NB
	}
	for {
		err := unix.Flock(int(f.Fd()), how)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, unix.EINTR):
			continue
		case !block && errors.Is(err, unix.EWOULDBLOCK):
			return false, nil
		default:
			return false, err
		}
	}
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
