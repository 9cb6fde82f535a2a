package fast

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"sort"
)

// LoadBinary creates a state from a flat binary image: loaded at address 0, executed from address 0.
func LoadBinary(image []byte, memSize uint64) (*VMState, error) {
	return NewVMStateWithImage(image, memSize)
}

// LoadELF copies the loadable segments of f into a fresh flat memory and starts execution at the entry point.
// Segment addresses are physical offsets into the memory, so they must fit below memSize.
func LoadELF(f *elf.File, memSize uint64) (*VMState, error) {
	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("expected a 64 bit ELF, got %s", f.Class)
	}
	if err := checkMemorySize(memSize); err != nil {
		return nil, err
	}
	out := NewVMState(memSize)
	out.PC = f.Entry

	for i, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			// this includes the .riscv.attributes segment, which has 0 mem size because it is not loaded into memory.
			continue
		}

		r := io.Reader(io.NewSectionReader(prog, 0, int64(prog.Filesz)))
		if prog.Filesz != prog.Memsz {
			if prog.Filesz < prog.Memsz {
				r = io.MultiReader(r, bytes.NewReader(make([]byte, prog.Memsz-prog.Filesz)))
			} else {
				return nil, fmt.Errorf("invalid PT_LOAD program segment %d, file size (%d) > mem size (%d)", i, prog.Filesz, prog.Memsz)
			}
		}
		if prog.Memsz > memSize || prog.Vaddr > memSize-prog.Memsz {
			return nil, fmt.Errorf("program segment %d at %016x (%d bytes) does not fit in memory of %d bytes: %w",
				i, prog.Vaddr, prog.Memsz, memSize, ErrMemoryOutOfBounds)
		}

		if err := out.Memory.SetMemoryRange(prog.Vaddr, r); err != nil {
			return nil, fmt.Errorf("failed to read program segment %d: %w", i, err)
		}
	}
	return out, nil
}

type SortedSymbols []elf.Symbol

// FindSymbol finds the symbol that intersects with the given addr, or a !start or !gap placeholder if none does
func (s SortedSymbols) FindSymbol(addr uint64) elf.Symbol {
	// find first symbol with higher start. Or n if no such symbol exists
	i := sort.Search(len(s), func(i int) bool {
		return s[i].Value > addr
	})
	if i == 0 {
		return elf.Symbol{Name: "!start", Value: 0}
	}
	out := &s[i-1]
	if out.Value+out.Size <= addr { // addr may be pointing to a gap between symbols
		return elf.Symbol{Name: "!gap", Value: addr}
	}
	return *out
}

// LookupSymbol returns the name of the symbol covering addr.
func (s SortedSymbols) LookupSymbol(addr uint64) string {
	if len(s) == 0 {
		return "!unknown"
	}
	return s.FindSymbol(addr).Name
}

func Symbols(f *elf.File) (SortedSymbols, error) {
	symbols, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols data: %w", err)
	}
	// not every ELF has sorted symbols.
	out := make(SortedSymbols, len(symbols))
	copy(out, symbols)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Value < out[j].Value
	})
	return out, nil
}
