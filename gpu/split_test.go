package gpu

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSplit(t *testing.T) {
	for _, tc := range []struct {
		n, devices int
		speedup    float64
		want       Plan
	}{
		{n: 0, devices: 3, speedup: DefaultSpeedup, want: Plan{}},
		{n: 10, devices: 0, speedup: DefaultSpeedup, want: Plan{CPU: 10}},
		{n: 1, devices: 4, speedup: DefaultSpeedup, want: Plan{CPU: 1}},
		{n: 100, devices: 1, speedup: DefaultSpeedup, want: Plan{CPU: 25, GPU: 75, Chunk: 75}},
		{n: 100, devices: 3, speedup: DefaultSpeedup, want: Plan{CPU: 10, GPU: 90, Chunk: 30}},
		{n: 101, devices: 2, speedup: 1, want: Plan{CPU: 34, GPU: 67, Chunk: 34}},
	} {
		if diff := cmp.Diff(tc.want, Split(tc.n, tc.devices, tc.speedup)); diff != "" {
			t.Errorf("Split(%d, %d, %v) (-want +got):\n%s", tc.n, tc.devices, tc.speedup, diff)
		}
	}
}

func TestSplitProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("every element is assigned exactly once", prop.ForAll(
		func(n, devices int, speedup float64) bool {
			p := Split(n, devices, speedup)
			if p.CPU+p.GPU != n || p.CPU < 1 || p.GPU < 0 {
				return false
			}
			if p.GPU == 0 {
				return p.Chunks() == 0
			}
			return p.Chunk*devices >= p.GPU &&
				(p.Chunk-1)*devices < p.GPU &&
				p.Chunks() <= devices
		},
		gen.IntRange(1, 50_000_000),
		gen.IntRange(0, 16),
		gen.Float64Range(0.01, 100),
	))

	properties.Property("no device means all on CPU", prop.ForAll(
		func(n int, speedup float64) bool {
			return Split(n, 0, speedup) == Plan{CPU: n}
		},
		gen.IntRange(1, 50_000_000),
		gen.Float64Range(0.01, 100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
