package cmd

import (
	"debug/elf"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/rv64sim/rv64sim/rvgo/fast"
)

func LoadBinary(ctx *cli.Context) error {
	binPath := ctx.Path(LoadPathFlag.Name)
	image, err := os.ReadFile(binPath)
	if err != nil {
		return fmt.Errorf("failed to read binary %q: %w", binPath, err)
	}
	state, err := fast.LoadBinary(image, ctx.Uint64(MemorySizeFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to load binary into VM state: %w", err)
	}
	return fast.WriteVMStateToFile(ctx.Path(LoadOutFlag.Name), state, OutFilePerm)
}

func LoadELF(ctx *cli.Context) error {
	elfPath := ctx.Path(LoadPathFlag.Name)
	elfProgram, err := elf.Open(elfPath)
	if err != nil {
		return fmt.Errorf("failed to open ELF file %q: %w", elfPath, err)
	}
	defer elfProgram.Close()
	if elfProgram.Machine != elf.EM_RISCV {
		return fmt.Errorf("ELF is not RISC-V, but got %q", elfProgram.Machine.String())
	}
	state, err := fast.LoadELF(elfProgram, ctx.Uint64(MemorySizeFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to load ELF data into VM state: %w", err)
	}
	return fast.WriteVMStateToFile(ctx.Path(LoadOutFlag.Name), state, OutFilePerm)
}

var LoadBinaryCommand = &cli.Command{
	Name:        "load-bin",
	Usage:       "Load a flat binary into a JSON state",
	Description: "Load a flat binary image at address 0 into a JSON state, with the stack pointer at the top of memory",
	Action:      LoadBinary,
	Flags: []cli.Flag{
		LoadPathFlag,
		LoadOutFlag,
		MemorySizeFlag,
	},
}

var LoadELFCommand = &cli.Command{
	Name:        "load-elf",
	Usage:       "Load ELF file into a JSON state",
	Description: "Load the PT_LOAD segments of a RISC-V ELF file into a JSON state, starting at the ELF entry point",
	Action:      LoadELF,
	Flags: []cli.Flag{
		LoadPathFlag,
		LoadOutFlag,
		MemorySizeFlag,
	},
}
