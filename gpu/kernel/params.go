package kernel

import (
	"fmt"

	"github.com/celer-network/gnark-gpu/internal/utils"
)

const (
	DefaultNumGroups     = 334
	DefaultWindowSize    = 10
	DefaultMaxN          = 15_000_000
	DefaultLocalWorkSize = 256

	MaxWindowSize = 20
)

// Params sizes a SingleKernel.
type Params struct {
	// MaxN is the largest number of elements a single dispatch may hold.
	MaxN          int
	NumGroups     int
	WindowSize    int
	LocalWorkSize int
	// Groups lists the groups buffers are allocated for.
	Groups []Group
}

func DefaultParams() Params {
	return Params{
		MaxN:          DefaultMaxN,
		NumGroups:     DefaultNumGroups,
		WindowSize:    DefaultWindowSize,
		LocalWorkSize: DefaultLocalWorkSize,
		Groups:        []Group{G1, G2},
	}
}

func (p Params) Validate() error {
	switch {
	case p.MaxN <= 0:
		return fmt.Errorf("kernel: invalid max n %d", p.MaxN)
	case p.NumGroups <= 0:
		return fmt.Errorf("kernel: invalid number of groups %d", p.NumGroups)
	case p.WindowSize <= 0 || p.WindowSize > MaxWindowSize:
		return fmt.Errorf("kernel: window size %d out of [1, %d]", p.WindowSize, MaxWindowSize)
	case p.LocalWorkSize <= 0:
		return fmt.Errorf("kernel: invalid local work size %d", p.LocalWorkSize)
	case len(p.Groups) == 0:
		return fmt.Errorf("kernel: no group configured")
	}
	var seen [numGroupKinds]bool
	for _, g := range p.Groups {
		if !g.valid() {
			return fmt.Errorf("kernel: invalid group %s", g)
		}
		if seen[g] {
			return fmt.Errorf("kernel: group %s configured twice", g)
		}
		seen[g] = true
	}
	return nil
}

// NumWindows is the number of windows covering a scalar. The most
// significant window is short when ScalarBits is not a multiple of
// WindowSize.
func (p Params) NumWindows() int {
	return utils.CeilDiv(ScalarBits, p.WindowSize)
}

// WindowWidth is the number of scalar bits covered by window w.
func (p Params) WindowWidth(w int) int {
	return min(p.WindowSize, ScalarBits-w*p.WindowSize)
}

// BucketLen is the number of bucket slots per work item.
func (p Params) BucketLen() int {
	return 1 << p.WindowSize
}

// WorkItems is the number of (group, window) work items of a dispatch.
func (p Params) WorkItems() int {
	return p.NumGroups * p.NumWindows()
}

// GlobalWorkSize is WorkItems rounded up to a multiple of LocalWorkSize.
func (p Params) GlobalWorkSize() int {
	return utils.RoundUp(p.WorkItems(), p.LocalWorkSize)
}

func (p Params) hasGroup(g Group) bool {
	for _, h := range p.Groups {
		if h == g {
			return true
		}
	}
	return false
}

// bufferSizes returns the byte sizes of the bases, buckets and results
// buffers of group g.
func (p Params) bufferSizes(g Group) (bases, buckets, results int) {
	bases = p.MaxN * g.AffineBytes()
	buckets = p.BucketLen() * p.WorkItems() * g.JacobianBytes()
	results = p.WorkItems() * g.JacobianBytes()
	return
}

// RequiredBytes is the device memory a kernel with these params allocates.
func (p Params) RequiredBytes() uint64 {
	total := uint64(p.MaxN) * ScalarBytes
	for _, g := range p.Groups {
		bases, buckets, results := p.bufferSizes(g)
		total += uint64(bases) + uint64(buckets) + uint64(results)
	}
	return total
}
