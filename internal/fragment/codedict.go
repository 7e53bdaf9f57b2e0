package fragment

import (
	"fmt"

	"github.com/mbarlow/cellasm/pkg/cell"
	"github.com/mbarlow/cellasm/pkg/debug"
)

// DictEntry is one `.code-dict-cell` entry: a fixed-width bit-string key
// (produced by ParseDictKeyBits) and the compiled body stored at that
// key. Every entry bound into a single BuildCodeDict call must carry a
// key of the same length.
type DictEntry struct {
	Key       []byte // 0/1 bytes, MSB-first, length == the dict's key width
	Value     *cell.Cell
	ValueNode *debug.Node
}

// BuildCodeDict encodes entries as a Hashmap n X edge with n-bit keys:
// a label (whichever of hml_short/hml_long/hml_same costs fewest bits)
// followed by either a leaf, once the label has consumed the full key,
// or a two-way fork on the next key bit, each branch stored as a child
// reference and itself a full Hashmap edge. A leaf's bound fragment is
// inlined directly into the node's own cell when it fits, or else
// attached by reference.
func BuildCodeDict(entries []DictEntry, n int) (*cell.Cell, *debug.Node, error) {
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("fragment: code dict needs at least one entry")
	}
	for _, e := range entries {
		if len(e.Key) != n {
			return nil, nil, fmt.Errorf("fragment: code dict key has %d bits, want %d", len(e.Key), n)
		}
	}
	return buildEdge(entries, n)
}

// buildEdge builds one hm_edge whose entries all share a key of length m
// remaining bits: bits already consumed by an ancestor label or fork are
// not present in entries' keys.
func buildEdge(entries []DictEntry, m int) (*cell.Cell, *debug.Node, error) {
	label := commonPrefix(entries, m)
	b := cell.NewBuilder()
	n := debug.NewNode()
	if err := writeLabel(b, label, m); err != nil {
		return nil, nil, err
	}

	rest := m - len(label)
	if rest == 0 {
		if len(entries) != 1 {
			return nil, nil, fmt.Errorf("fragment: code dict: %d entries collide on the same key", len(entries))
		}
		if err := writeLeaf(b, n, entries[0]); err != nil {
			return nil, nil, err
		}
		return b.Finalize(), n, nil
	}

	bitPos := len(label)
	var zeros, ones []DictEntry
	for _, e := range entries {
		if e.Key[bitPos] == 0 {
			zeros = append(zeros, stripBit(e, bitPos))
		} else {
			ones = append(ones, stripBit(e, bitPos))
		}
	}
	if len(zeros) == 0 || len(ones) == 0 {
		return nil, nil, fmt.Errorf("fragment: code dict: label computation left an empty branch")
	}

	zeroCell, zeroNode, err := buildEdge(zeros, rest-1)
	if err != nil {
		return nil, nil, err
	}
	oneCell, oneNode, err := buildEdge(ones, rest-1)
	if err != nil {
		return nil, nil, err
	}
	if err := b.AppendReference(zeroCell); err != nil {
		return nil, nil, err
	}
	if err := b.AppendReference(oneCell); err != nil {
		return nil, nil, err
	}
	if err := n.AppendNode(zeroNode); err != nil {
		return nil, nil, err
	}
	if err := n.AppendNode(oneNode); err != nil {
		return nil, nil, err
	}
	return b.Finalize(), n, nil
}

// writeLeaf writes entry's fragment body as the edge's HashmapNode 0 X
// leaf payload: inlined directly if it fits the builder's remaining bit
// and reference budget, otherwise attached as a single cell reference.
func writeLeaf(b *cell.Builder, n *debug.Node, entry DictEntry) error {
	offset := b.BitsUsed()
	if err := b.AppendCellPayload(entry.Value); err == nil {
		return n.InlineNode(offset, entry.ValueNode)
	}
	if err := b.AppendReference(entry.Value); err != nil {
		return err
	}
	return n.AppendNode(entry.ValueNode)
}

// stripBit drops the key bit at bitPos (consumed by the fork that splits
// entries into the 0-branch and 1-branch) from e, returning an entry
// whose key is the remaining suffix.
func stripBit(e DictEntry, bitPos int) DictEntry {
	return DictEntry{Key: e.Key[bitPos+1:], Value: e.Value, ValueNode: e.ValueNode}
}

// commonPrefix returns the longest bit string shared by every entry's
// first m key bits.
func commonPrefix(entries []DictEntry, m int) []byte {
	prefix := entries[0].Key[:m]
	for _, e := range entries[1:] {
		i := 0
		for i < len(prefix) && e.Key[i] == prefix[i] {
			i++
		}
		prefix = prefix[:i]
	}
	out := make([]byte, len(prefix))
	copy(out, prefix)
	return out
}

// bitLen returns the number of bits needed for a Hashmap length field
// that must address every value in 0..=m: the smallest k with 2^k > m.
func bitLen(m int) int {
	k := 0
	for (1 << uint(k)) <= m {
		k++
	}
	return k
}

// writeLabel picks and writes whichever of hml_short$0, hml_long$10, or
// hml_same$11 costs fewest bits for label against a remaining budget of
// m bits (the length field width every non-short form needs).
func writeLabel(b *cell.Builder, label []byte, m int) error {
	lenField := bitLen(m)
	costShort := 2*len(label) + 2
	costLong := 2 + lenField + len(label)

	best, write := costLong, func() error { return writeLongLabel(b, label, lenField) }
	if costShort < best {
		best, write = costShort, func() error { return writeShortLabel(b, label) }
	}
	if isUniform(label) {
		costSame := 3 + lenField
		if costSame < best {
			write = func() error { return writeSameLabel(b, label, lenField) }
		}
	}
	return write()
}

// writeShortLabel writes hml_short$0 len:(Unary ~n) s:(n*bit): a 0 tag,
// a unary-encoded length (n ones then a terminating 0), then the label
// bits themselves.
func writeShortLabel(b *cell.Builder, label []byte) error {
	if err := b.AppendBits(0, 1); err != nil {
		return err
	}
	for range label {
		if err := b.AppendBits(1, 1); err != nil {
			return err
		}
	}
	if err := b.AppendBits(0, 1); err != nil {
		return err
	}
	return writeBitString(b, label)
}

// writeLongLabel writes hml_long$10 n:(#<=m) s:(n*bit): a 10 tag, the
// length as a lenField-wide binary field, then the label bits.
func writeLongLabel(b *cell.Builder, label []byte, lenField int) error {
	if err := b.AppendBits(0b10, 2); err != nil {
		return err
	}
	if err := b.AppendBits(uint64(len(label)), lenField); err != nil {
		return err
	}
	return writeBitString(b, label)
}

// writeSameLabel writes hml_same$11 v:bit n:(#<=m): a 11 tag, the
// repeated bit value, then the length as a lenField-wide binary field.
func writeSameLabel(b *cell.Builder, label []byte, lenField int) error {
	if err := b.AppendBits(0b11, 2); err != nil {
		return err
	}
	var v uint64
	if len(label) > 0 {
		v = uint64(label[0])
	}
	if err := b.AppendBits(v, 1); err != nil {
		return err
	}
	return b.AppendBits(uint64(len(label)), lenField)
}

func writeBitString(b *cell.Builder, bits []byte) error {
	for _, bit := range bits {
		if err := b.AppendBits(uint64(bit), 1); err != nil {
			return err
		}
	}
	return nil
}

func isUniform(label []byte) bool {
	for i := 1; i < len(label); i++ {
		if label[i] != label[0] {
			return false
		}
	}
	return true
}
