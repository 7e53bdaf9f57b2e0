package fragment

import (
	"fmt"

	"github.com/mbarlow/cellasm/pkg/cell"
)

// RunComputedCell implements the `.inline-computed-cell name, seed`
// contract: a previously defined fragment's body runs as a tiny builder
// program instead of being spliced or referenced like `.inline`, and
// the cell it leaves behind is what gets attached at the call site.
//
// ops is the fragment's top-level mnemonic sequence; the interpreter
// understands the builder-manipulation subset (NEWC, STONE, STZERO,
// STREF, ENDC), executed against a stack of builders whose bottom
// element is seeded with seed:
//
//   - NEWC pushes a fresh builder;
//   - STONE / STZERO append a single 1/0 payload bit to the top
//     builder;
//   - STREF appends the most recently finalized cell as a reference of
//     the top builder;
//   - ENDC finalizes the top builder, popping it.
//
// The result is the last cell ENDC produced, or the seeded bottom
// builder finalized when the program never runs ENDC. The full runtime
// treats these as stack-machine instructions over arbitrary values;
// this interpreter covers only the shapes a fragment authored for
// computed-cell use actually takes.
func RunComputedCell(seed []byte, seedBits int, ops []string) (*cell.Cell, error) {
	bottom := cell.NewBuilder()
	for i := 0; i < seedBits; i++ {
		bit := (seed[i/8] >> uint(7-i%8)) & 1
		if err := bottom.AppendBits(uint64(bit), 1); err != nil {
			return nil, fmt.Errorf("fragment: computed-cell seed: %w", err)
		}
	}

	stack := []*cell.Builder{bottom}
	var last *cell.Cell
	for _, op := range ops {
		top := stack[len(stack)-1]
		switch op {
		case "NEWC":
			stack = append(stack, cell.NewBuilder())
		case "STONE":
			if err := top.AppendBits(1, 1); err != nil {
				return nil, fmt.Errorf("fragment: computed-cell STONE: %w", err)
			}
		case "STZERO":
			if err := top.AppendBits(0, 1); err != nil {
				return nil, fmt.Errorf("fragment: computed-cell STZERO: %w", err)
			}
		case "STREF":
			if last == nil {
				return nil, fmt.Errorf("fragment: computed-cell STREF with no finalized cell")
			}
			if err := top.AppendReference(last); err != nil {
				return nil, fmt.Errorf("fragment: computed-cell STREF: %w", err)
			}
		case "ENDC":
			if len(stack) == 1 {
				return nil, fmt.Errorf("fragment: computed-cell ENDC without a matching NEWC")
			}
			last = top.Finalize()
			stack = stack[:len(stack)-1]
		default:
			return nil, fmt.Errorf("fragment: computed-cell program uses unsupported op %q", op)
		}
	}
	if last == nil {
		last = bottom.Finalize()
	}
	return last, nil
}

// NewLibraryCell wraps raw, pre-hashed library reference bytes (the
// `.library-cell <hex>` contract: a cell referencing external, already
// compiled code by hash rather than embedding it) as a leaf cell.
func NewLibraryCell(hash []byte) (*cell.Cell, error) {
	b := cell.NewBuilder()
	if err := b.AppendBytes(hash); err != nil {
		return nil, fmt.Errorf("fragment: library-cell: %w", err)
	}
	return b.Finalize(), nil
}
