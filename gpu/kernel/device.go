package kernel

import "github.com/consensys/gnark-crypto/ecc"

// DeviceInfo describes an accelerator.
type DeviceInfo struct {
	Index  int
	Name   string
	Vendor string
	// Driver is the driver or runtime version, semver formatted when known.
	Driver string
	// MemoryBytes is the device memory size, 0 when unknown.
	MemoryBytes uint64
}

// Backend enumerates the devices of one accelerator runtime.
type Backend interface {
	Name() string
	Devices() ([]Device, error)
}

// Device is one accelerator able to hold buffers and run programs.
type Device interface {
	Info() DeviceInfo
	// Alloc reserves size bytes of device memory.
	Alloc(size int) (Buffer, error)
	// Build compiles the multiexp program for src.
	Build(src Source) (Program, error)
}

// Buffer is a region of device memory.
type Buffer interface {
	Len() int
	// Write copies src to the start of the buffer.
	Write(src []byte) error
	// Read copies the start of the buffer into dst.
	Read(dst []byte) error
	Free() error
}

// Program is a built device program.
type Program interface {
	// Launch runs entry over args and returns once the device is done.
	Launch(entry string, args LaunchArgs) error
	Close() error
}

// Source identifies the program a kernel needs.
type Source struct {
	Curve   ecc.ID
	MaxN    int
	Entries []string
}

// LaunchArgs are the arguments of a multiexp entry point.
//
// Work item gid < NumGroups*NumWindows handles group gid/NumWindows and
// window gid%NumWindows. Its partial sum is written as a Jacobian point at
// index gid of Results. Buckets holds 2^WindowSize Jacobian points of
// scratch per work item.
type LaunchArgs struct {
	Bases   Buffer
	Buckets Buffer
	Results Buffer
	Exps    Buffer

	N          uint32
	NumGroups  uint32
	NumWindows uint32
	WindowSize uint32

	GlobalWorkSize int
	LocalWorkSize  int
}
