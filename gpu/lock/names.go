package lock

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

const (
	DeviceLockName   = "gnark-gpu.gpu.lock"
	PriorityLockName = "gnark-gpu.priority.lock"
)

// Names are the two lock names shared by a group of cooperating processes.
type Names struct {
	Device   string
	Priority string
}

func DefaultNames() Names {
	return Names{Device: DeviceLockName, Priority: PriorityLockName}
}

// Namespaced derives lock names private to namespace ns, so that independent
// groups of processes on one host do not contend with each other. The empty
// namespace maps to DefaultNames.
func Namespaced(ns string) Names {
	if ns == "" {
		return DefaultNames()
	}
	h := blake2b.Sum256([]byte(ns))
	tag := hex.EncodeToString(h[:8])
	return Names{
		Device:   "gnark-gpu." + tag + ".gpu.lock",
		Priority: "gnark-gpu." + tag + ".priority.lock",
	}
}

// Locks returns the device and priority locks for names on ex.
func Locks(ex Exclusivity, names Names) (*DeviceLock, *PriorityLock) {
	return NewDeviceLock(ex, names.Device), NewPriorityLock(ex, names.Priority)
}
