package surfacemesh

import "fmt"

// Exterior sentinels used in face label pairs.
const (
	// ExteriorLabel marks the outside of the grid in FaceLabels.
	ExteriorLabel int32 = -1
	// ExteriorPhase marks the outside of the grid in FacePhases. Phase 0 is
	// the reserved "unknown" phase.
	ExteriorPhase int32 = 0
)

// NodeType classifies a vertex by how many distinct labels meet at it.
// The ones digit is the multiplicity (capped at 4, the exterior counting as a
// label) and 10 is added when the vertex lies on the grid exterior.
type NodeType int8

// Node type values.
const (
	NodeBoundary          NodeType = 2
	NodeTripleLine        NodeType = 3
	NodeQuadPoint         NodeType = 4
	NodeExteriorBoundary  NodeType = 12
	NodeExteriorTriple    NodeType = 13
	NodeExteriorQuadPoint NodeType = 14

	exteriorOffset  NodeType = 10
	maxMultiplicity          = 4
)

// Multiplicity returns the capped number of labels meeting at the vertex.
func (t NodeType) Multiplicity() int { return int(t % exteriorOffset) }

// OnExterior reports whether the exterior is among the vertex's labels.
func (t NodeType) OnExterior() bool { return t >= exteriorOffset }

// Valid reports whether t is one of the six values the classifier produces.
func (t NodeType) Valid() bool {
	switch t {
	case NodeBoundary, NodeTripleLine, NodeQuadPoint,
		NodeExteriorBoundary, NodeExteriorTriple, NodeExteriorQuadPoint:
		return true
	}
	return false
}

// String returns a readable name such as "triple+exterior".
func (t NodeType) String() string {
	var s string
	switch t.Multiplicity() {
	case 2:
		s = "boundary"
	case 3:
		s = "triple"
	case 4:
		s = "quadruple"
	default:
		return fmt.Sprintf("NodeType(%d)", int8(t))
	}
	if t.OnExterior() {
		s += "+exterior"
	}
	return s
}

// labelSet is a small set of region labels; vertices rarely see more than a
// handful, so a linear scan beats a map.
type labelSet []int32

func (s *labelSet) add(label int32) {
	for _, l := range *s {
		if l == label {
			return
		}
	}
	*s = append(*s, label)
}

func (s labelSet) contains(label int32) bool {
	for _, l := range s {
		if l == label {
			return true
		}
	}
	return false
}

// classify computes the node type of a vertex from its ownership set.
func classify(owners labelSet) NodeType {
	n := len(owners)
	if n > maxMultiplicity {
		n = maxMultiplicity
	}
	t := NodeType(n)
	if owners.contains(ExteriorLabel) {
		t += exteriorOffset
	}
	return t
}
