package debug

import (
	"errors"
	"sort"

	"github.com/mbarlow/cellasm/pkg/cell"
)

// ErrTooManyChildren is returned by AppendNode when a Node already holds
// cell.MaxRefs children — the debug tree's arity must never exceed the
// cell tree's, since the two are walked in lockstep.
var ErrTooManyChildren = errors.New("debug: node already has cell.MaxRefs children")

// Node is one node of the debug tree, structurally mirroring a single
// cell.Cell: the same child count, in the same order. offsets maps a
// bit offset within the owning cell's payload to the source position
// whose compilation produced the bits starting there.
type Node struct {
	offsets  map[int]Pos
	children []*Node
}

// NewNode returns an empty Node with no offsets and no children.
func NewNode() *Node {
	return &Node{offsets: make(map[int]Pos)}
}

// NewNodeFrom returns a Node with a single offset-0 entry for pos.
func NewNodeFrom(pos Pos) *Node {
	n := NewNode()
	n.offsets[0] = pos
	return n
}

// NewShapeNode returns a position-free Node tree structurally mirroring
// c: the same child arity at every level, every offset map empty. Used
// for cells that carry no source positions at all (computed cells)
// but still need a congruent debug tree for Collect to walk.
func NewShapeNode(c *cell.Cell) *Node {
	n := NewNode()
	for _, ref := range c.References() {
		n.children = append(n.children, NewShapeNode(ref))
	}
	return n
}

// Children returns n's children in order. The slice must not be mutated.
func (n *Node) Children() []*Node { return n.children }

// Offsets returns a copy of n's offset-to-position map.
func (n *Node) Offsets() map[int]Pos {
	out := make(map[int]Pos, len(n.offsets))
	for k, v := range n.offsets {
		out[k] = v
	}
	return out
}

// SortedOffsets returns the keys of n's offset map in ascending order.
func (n *Node) SortedOffsets() []int {
	keys := make([]int, 0, len(n.offsets))
	for k := range n.offsets {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Set records that the bits starting at offset within the owning cell
// came from pos.
func (n *Node) Set(offset int, pos Pos) {
	n.offsets[offset] = pos
}

// AppendNode appends child as n's next child, failing once n already
// holds cell.MaxRefs children — a Node's arity can never exceed a
// Cell's, since the two trees are walked in lockstep by child index.
func (n *Node) AppendNode(child *Node) error {
	if len(n.children) >= cell.MaxRefs {
		return ErrTooManyChildren
	}
	n.children = append(n.children, child)
	return nil
}

// InlineNode merges other into n as if other's bits had been appended
// directly at the given bit offset within n's owning builder: every
// offset in other is shifted by offset before being copied into n, and
// other's children are appended as n's next children in order. This is
// the debug-tree counterpart of write_command's "append raw bits"
// behaviour (see internal/codewriter).
func (n *Node) InlineNode(offset int, other *Node) error {
	for off, pos := range other.offsets {
		n.offsets[offset+off] = pos
	}
	for _, child := range other.children {
		if err := n.AppendNode(child); err != nil {
			return err
		}
	}
	return nil
}

// Stub returns a copy of n containing only its offsets, shifted by
// offset, with no children. The writer's composite emit does not use
// it: it records the opcode's position with Set and appends the nested
// body's node as one child with AppendNode.
func (n *Node) Stub(offset int) *Node {
	s := NewNode()
	for off, pos := range n.offsets {
		s.offsets[offset+off] = pos
	}
	return s
}
