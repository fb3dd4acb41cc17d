package gpu

import (
	"math"

	"github.com/celer-network/gnark-gpu/internal/utils"
)

// Plan is the partition of a multiexp of n elements: the first CPU
// elements go to the CPU pool, the remaining GPU elements are cut into
// contiguous chunks of Chunk elements, one per device.
type Plan struct {
	CPU   int
	GPU   int
	Chunk int
}

// Split divides n elements between the CPU and devices devices each
// speedup times faster than the CPU pool. The CPU always gets at least one
// element of a non empty multiexp.
func Split(n, devices int, speedup float64) Plan {
	if n <= 0 {
		return Plan{}
	}
	cpuN := int(math.Ceil(float64(n) / (float64(devices)*speedup + 1)))
	cpuN = max(1, min(n, cpuN))
	p := Plan{CPU: cpuN, GPU: n - cpuN}
	if devices > 0 && p.GPU > 0 {
		p.Chunk = utils.CeilDiv(p.GPU, devices)
	}
	return p
}

// Chunks is the number of non empty device chunks.
func (p Plan) Chunks() int {
	if p.Chunk == 0 {
		return 0
	}
	return utils.CeilDiv(p.GPU, p.Chunk)
}
