package kernel

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/sync/errgroup"
)

// HostDriverVersion is the Driver reported by host devices.
const HostDriverVersion = "1.0.0"

// HostBackend emulates devices on the host: buffers are byte slices and
// programs run the device algorithm on goroutines. It is used where no
// accelerator is available and to test everything above the device
// contract.
type HostBackend struct {
	devices []Device
}

// NewHostBackend emulates count devices of memory bytes each (0 for
// unbounded).
func NewHostBackend(count int, memory uint64) *HostBackend {
	b := &HostBackend{devices: make([]Device, count)}
	for i := range b.devices {
		b.devices[i] = NewHostDevice(i, memory)
	}
	return b
}

func (b *HostBackend) Name() string { return "host" }

func (b *HostBackend) Devices() ([]Device, error) {
	return b.devices, nil
}

type HostDevice struct {
	info DeviceInfo

	mu        sync.Mutex
	allocated uint64
}

func NewHostDevice(index int, memory uint64) *HostDevice {
	return &HostDevice{info: DeviceInfo{
		Index:       index,
		Name:        fmt.Sprintf("host-%d", index),
		Vendor:      "gnark-gpu",
		Driver:      HostDriverVersion,
		MemoryBytes: memory,
	}}
}

func (d *HostDevice) Info() DeviceInfo { return d.info }

func (d *HostDevice) Alloc(size int) (Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("host: invalid buffer size %d", size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	limit := d.info.MemoryBytes
	if limit == 0 {
		limit = math.MaxUint64
	}
	if uint64(size) > limit-d.allocated {
		return nil, fmt.Errorf("host: %s out of memory", d.info.Name)
	}
	d.allocated += uint64(size)
	return &hostBuffer{dev: d, data: make([]byte, size)}, nil
}

// Allocated is the memory currently held by live buffers.
func (d *HostDevice) Allocated() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

func (d *HostDevice) Build(src Source) (Program, error) {
	if src.Curve != ecc.BN254 {
		return nil, fmt.Errorf("host: unsupported curve %s", src.Curve)
	}
	for _, e := range src.Entries {
		if _, ok := groupOfEntry(e); !ok {
			return nil, fmt.Errorf("host: unknown entry point %q", e)
		}
	}
	return &hostProgram{workers: runtime.NumCPU()}, nil
}

var errFreed = errors.New("host: buffer freed")

type hostBuffer struct {
	dev  *HostDevice
	data []byte
}

func (b *hostBuffer) Len() int { return len(b.data) }

func (b *hostBuffer) Write(src []byte) error {
	if b.data == nil {
		return errFreed
	}
	if len(src) > len(b.data) {
		return fmt.Errorf("host: write of %d bytes into a %d bytes buffer", len(src), len(b.data))
	}
	copy(b.data, src)
	return nil
}

func (b *hostBuffer) Read(dst []byte) error {
	if b.data == nil {
		return errFreed
	}
	if len(dst) > len(b.data) {
		return fmt.Errorf("host: read of %d bytes from a %d bytes buffer", len(dst), len(b.data))
	}
	copy(dst, b.data)
	return nil
}

func (b *hostBuffer) Free() error {
	if b.data == nil {
		return nil
	}
	b.dev.mu.Lock()
	b.dev.allocated -= uint64(len(b.data))
	b.dev.mu.Unlock()
	b.data = nil
	return nil
}

type hostProgram struct {
	workers int
	closed  bool
}

func (p *hostProgram) Close() error {
	p.closed = true
	return nil
}

func (p *hostProgram) Launch(entry string, args LaunchArgs) error {
	if p.closed {
		return errors.New("host: program closed")
	}
	g, ok := groupOfEntry(entry)
	if !ok {
		return fmt.Errorf("host: unknown entry point %q", entry)
	}
	var bufs [4]*hostBuffer
	for i, b := range []Buffer{args.Bases, args.Buckets, args.Results, args.Exps} {
		hb, ok := b.(*hostBuffer)
		if !ok || hb.data == nil {
			return errors.New("host: launch with a foreign or freed buffer")
		}
		bufs[i] = hb
	}
	l := hostLaunch{
		args:    args,
		bases:   bufs[0].data,
		buckets: bufs[1].data,
		results: bufs[2].data,
		workers: p.workers,
	}
	if int(args.NumGroups*args.NumWindows) > args.GlobalWorkSize {
		return fmt.Errorf("host: global work size %d below %d work items", args.GlobalWorkSize, args.NumGroups*args.NumWindows)
	}

	n := int(args.N)
	l.scalars = make([][fr.Limbs]uint64, n)
	if n*ScalarBytes > len(bufs[3].data) {
		return fmt.Errorf("host: %d exponents overflow the exponent buffer", n)
	}
	if err := ReadScalarLimbs(l.scalars, bufs[3].data[:n*ScalarBytes]); err != nil {
		return err
	}

	switch g {
	case G1:
		return launch[bn254.G1Jac, bn254.G1Affine](l, g, ReadG1Affines, PutG1Jacobians)
	default:
		return launch[bn254.G2Jac, bn254.G2Affine](l, g, ReadG2Affines, PutG2Jacobians)
	}
}

type hostLaunch struct {
	args    LaunchArgs
	bases   []byte
	buckets []byte
	results []byte
	scalars [][fr.Limbs]uint64
	workers int
}

// launch runs every work item of a dispatch. Work items only touch their own
// slice of the bucket and result buffers, so they run concurrently.
func launch[J, A any, PJ jacobian[J, A]](
	l hostLaunch,
	g Group,
	readBases func([]A, []byte) error,
	putJacobians func([]byte, []J) error,
) error {
	n := int(l.args.N)
	numGroups, numWindows := int(l.args.NumGroups), int(l.args.NumWindows)
	windowSize := int(l.args.WindowSize)
	bucketLen := 1 << windowSize
	jacBytes := g.JacobianBytes()
	workItems := numGroups * numWindows

	if n*g.AffineBytes() > len(l.bases) ||
		workItems*bucketLen*jacBytes > len(l.buckets) ||
		workItems*jacBytes > len(l.results) {
		return fmt.Errorf("host: buffers too small for %d elements", n)
	}
	bases := make([]A, n)
	if err := readBases(bases, l.bases[:n*g.AffineBytes()]); err != nil {
		return err
	}

	chunk := (n + numGroups - 1) / numGroups
	partials := make([]J, workItems)
	var eg errgroup.Group
	eg.SetLimit(l.workers)
	for gid := range workItems {
		group, window := gid/numWindows, gid%numWindows
		lo := window * windowSize
		width := min(windowSize, ScalarBits-lo)
		start, end := min(n, group*chunk), min(n, (group+1)*chunk)
		eg.Go(func() error {
			buckets := make([]J, bucketLen-1)
			partials[gid] = bucketSum[J, A, PJ](bases[start:end], l.scalars[start:end], lo, width, buckets)
			// slot 0 stays the point at infinity
			off := gid * bucketLen * jacBytes
			return putJacobians(l.buckets[off+jacBytes:off+bucketLen*jacBytes], buckets)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return putJacobians(l.results[:workItems*jacBytes], partials)
}
