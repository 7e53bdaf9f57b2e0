package asm

import (
	"sync"

	"github.com/mbarlow/cellasm/internal/fragment"
	"github.com/mbarlow/cellasm/internal/opcode"
	"github.com/mbarlow/cellasm/pkg/cell"
	"github.com/mbarlow/cellasm/pkg/debug"
)

// Engine compiles multiple named units against one shared mnemonic
// registry and one shared fragment table, so a fragment defined by one
// unit's ".fragment" directive can be ".inline"d by a later unit built
// from the same Engine. Concurrent Build calls against different unit
// names are only safe once every fragment a later call might inline
// has already been defined by an earlier, completed Build; the Engine
// does not itself serialize Build calls.
type Engine struct {
	filename  string
	registry  *opcode.Registry
	fragments *fragment.Table

	mu    sync.Mutex
	units map[string]*Unit
}

// NewEngine returns an Engine whose units report filename as their
// source origin and that starts with the default representative
// mnemonic registry and an empty fragment table.
func NewEngine(filename string) *Engine {
	return &Engine{
		filename:  filename,
		registry:  opcode.NewDefaultRegistry(),
		fragments: fragment.NewTable(),
		units:     make(map[string]*Unit),
	}
}

// Unit is one compiled named program: its finalized root cell and
// parallel debug node, not yet collected into a debug.Info map.
type Unit struct {
	Name string
	cell *cell.Cell
	node *debug.Node
}

// Build compiles text into a new Unit named unitName and records it,
// replacing any previous unit of the same name.
func (e *Engine) Build(unitName, text string) (*Unit, error) {
	c, n, err := compile(e.filename, text, e.registry, e.fragments)
	if err != nil {
		return nil, err
	}
	u := &Unit{Name: unitName, cell: c, node: n}
	e.mu.Lock()
	e.units[unitName] = u
	e.mu.Unlock()
	return u, nil
}

// Unit returns the most recently built unit of that name, if any.
func (e *Engine) Unit(unitName string) (*Unit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.units[unitName]
	return u, ok
}

// Finalize returns u's root cell together with the debug map collected
// from its parallel node tree.
func (u *Unit) Finalize() (*cell.Cell, *debug.Info) {
	info, err := debug.Collect(u.cell, u.node)
	if err != nil {
		// Cell/node shape is an internal invariant maintained by every
		// Writer/Handler in this package; a mismatch here means a bug in
		// this package, not bad input, so Unit.Finalize cannot usefully
		// return a caller-actionable error for it.
		panic(err)
	}
	return u.cell, info
}
