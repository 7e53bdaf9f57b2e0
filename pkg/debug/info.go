package debug

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mbarlow/cellasm/pkg/cell"
)

// Info is the content-addressed debug map produced by a compile: for
// every distinct cell hash encountered while walking the compiled
// program, the bit-offset-to-source-position table recorded for the
// first occurrence of that hash. Cells that recur (shared subtrees)
// keep only their first-seen offsets.
type Info struct {
	entries map[cell.Hash]map[int]Pos
}

// NewInfo returns an empty Info.
func NewInfo() *Info {
	return &Info{entries: make(map[cell.Hash]map[int]Pos)}
}

// Len reports how many distinct cell hashes Info tracks.
func (d *Info) Len() int { return len(d.entries) }

// IsEmpty reports whether Info tracks no cells at all.
func (d *Info) IsEmpty() bool { return len(d.entries) == 0 }

// Get returns the offset table recorded for hash, if any.
func (d *Info) Get(hash cell.Hash) (map[int]Pos, bool) {
	m, ok := d.entries[hash]
	return m, ok
}

// Hashes returns every distinct cell hash Info tracks, in the map's
// (unspecified) iteration order. Callers that need a stable order, such
// as a TUI listing, must sort the result themselves.
func (d *Info) Hashes() []cell.Hash {
	out := make([]cell.Hash, 0, len(d.entries))
	for h := range d.entries {
		out = append(out, h)
	}
	return out
}

// Insert records offsets for hash if hash has not been seen before.
// Subsequent inserts for an already-seen hash are no-ops, preserving
// the first occurrence's positions for cells shared across the tree.
func (d *Info) Insert(hash cell.Hash, offsets map[int]Pos) {
	if _, ok := d.entries[hash]; ok {
		return
	}
	cp := make(map[int]Pos, len(offsets))
	for k, v := range offsets {
		cp[k] = v
	}
	d.entries[hash] = cp
}

// Remove deletes hash's entry, if any.
func (d *Info) Remove(hash cell.Hash) {
	delete(d.entries, hash)
}

// Collect walks root and node in lockstep preorder (root first, then
// each child pair in order) and inserts every cell's offset table,
// first occurrence wins. root and node must have identical shape: the
// same reference/child count at every level.
func Collect(root *cell.Cell, node *Node) (*Info, error) {
	info := NewInfo()
	if err := collectInto(info, root, node); err != nil {
		return nil, err
	}
	return info, nil
}

func collectInto(info *Info, c *cell.Cell, n *Node) error {
	if c.RefsCount() != len(n.children) {
		return fmt.Errorf("debug: shape mismatch: cell has %d refs, node has %d children", c.RefsCount(), len(n.children))
	}
	info.Insert(c.Hash(), n.offsets)
	for i, child := range n.children {
		ref, err := c.Reference(i)
		if err != nil {
			return err
		}
		if err := collectInto(info, ref, child); err != nil {
			return err
		}
	}
	return nil
}

// jsonEntry is the wire shape of a single offset's position: the
// stable, serializable subset of Pos (LineCode is diagnostic-only).
type jsonEntry struct {
	Filename string `json:"filename"`
	Line     int    `json:"line"`
}

// MarshalJSON renders Info as hash-hex-string -> offset-decimal-string
// -> {filename, line}, the *.dbg.json file shape.
func (d *Info) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]jsonEntry, len(d.entries))
	for hash, offsets := range d.entries {
		inner := make(map[string]jsonEntry, len(offsets))
		for off, pos := range offsets {
			inner[strconv.Itoa(off)] = jsonEntry{Filename: pos.Filename, Line: pos.Line}
		}
		out[hash.String()] = inner
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the *.dbg.json shape produced by MarshalJSON.
func (d *Info) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]jsonEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	entries := make(map[cell.Hash]map[int]Pos, len(raw))
	for hashHex, inner := range raw {
		raw, err := hex.DecodeString(hashHex)
		if err != nil || len(raw) != len(cell.Hash{}) {
			return fmt.Errorf("debug: invalid hash key %q", hashHex)
		}
		var h cell.Hash
		copy(h[:], raw)
		offsets := make(map[int]Pos, len(inner))
		for offStr, entry := range inner {
			off, err := strconv.Atoi(offStr)
			if err != nil {
				return fmt.Errorf("debug: invalid offset key %q: %w", offStr, err)
			}
			offsets[off] = Pos{Filename: entry.Filename, Line: entry.Line}
		}
		entries[h] = offsets
	}
	d.entries = entries
	return nil
}
