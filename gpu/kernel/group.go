package kernel

import "fmt"

// Group selects the curve group a multiexp runs in.
type Group uint8

const (
	G1 Group = iota
	G2

	numGroupKinds
)

func (g Group) String() string {
	switch g {
	case G1:
		return "G1"
	case G2:
		return "G2"
	default:
		return fmt.Sprintf("Group(%d)", uint8(g))
	}
}

// EntryPoint is the name of the device function computing a multiexp in g.
func (g Group) EntryPoint() string {
	return g.String() + "_multiexp"
}

// AffineBytes is the encoded size of one affine point of g.
func (g Group) AffineBytes() int {
	if g == G2 {
		return G2AffineBytes
	}
	return G1AffineBytes
}

// JacobianBytes is the encoded size of one Jacobian point of g.
func (g Group) JacobianBytes() int {
	if g == G2 {
		return G2JacobianBytes
	}
	return G1JacobianBytes
}

func (g Group) valid() bool {
	return g < numGroupKinds
}

func groupOfEntry(entry string) (Group, bool) {
	for g := Group(0); g < numGroupKinds; g++ {
		if g.EntryPoint() == entry {
			return g, true
		}
	}
	return 0, false
}
