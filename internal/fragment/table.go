// Package fragment implements the named, pre-compiled fragment table
// and the machinery behind the `.fragment`/`.inline`/`.code-dict-cell`/
// `.library-cell`/`.inline-computed-cell` directives built on top of
// it.
package fragment

import (
	"errors"
	"fmt"

	"github.com/mbarlow/cellasm/pkg/cell"
	"github.com/mbarlow/cellasm/pkg/debug"
)

// ErrUnknownFragment is returned when `.inline` names a fragment that
// has not been defined (by a prior `.fragment` directive) in the unit.
var ErrUnknownFragment = errors.New("fragment: unknown fragment name")

// ErrAlreadyDefined is returned when `.fragment` redefines a name.
var ErrAlreadyDefined = errors.New("fragment: name already defined")

// Fragment is a named, pre-compiled body: its finalized (cell, node)
// pair, a flattened bit image used by `.inline` to splice the
// fragment's bytes directly into the calling unit instead of emitting a
// reference to it, and the body's top-level mnemonic list, which
// `.inline-computed-cell` re-interprets as a builder program.
type Fragment struct {
	Name string
	Cell *cell.Cell
	Node *debug.Node
	Flat []byte // the fragment's root-cell bytes, for inlining
	Bits int
	Ops  []string
}

// Table holds every fragment defined so far in a unit. It is read-only
// once a fragment has been inserted: concurrent Build calls against
// other units may safely call Lookup once every fragment they might
// `.inline` has been Defined.
type Table struct {
	byName map[string]*Fragment
}

// NewTable returns an empty fragment Table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*Fragment)}
}

// Define registers a newly compiled fragment body under name. ops is
// the body's top-level mnemonic sequence, upper-cased by the caller.
func (t *Table) Define(name string, c *cell.Cell, n *debug.Node, ops []string) (*Fragment, error) {
	if _, exists := t.byName[name]; exists {
		return nil, fmt.Errorf("fragment: %q: %w", name, ErrAlreadyDefined)
	}
	f := &Fragment{
		Name: name,
		Cell: c,
		Node: n,
		Flat: c.Bytes(),
		Bits: c.BitsUsed(),
		Ops:  ops,
	}
	t.byName[name] = f
	return f, nil
}

// Lookup returns the fragment registered under name.
func (t *Table) Lookup(name string) (*Fragment, error) {
	f, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("fragment: %q: %w", name, ErrUnknownFragment)
	}
	return f, nil
}
