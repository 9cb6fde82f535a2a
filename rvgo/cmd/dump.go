package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rv64sim/rv64sim/rvgo/fast"
)

func Dump(ctx *cli.Context) error {
	input := ctx.Path(DumpInputFlag.Name)
	state, err := fast.LoadVMStateFromFile(input)
	if err != nil {
		return fmt.Errorf("invalid input state (%v): %w", input, err)
	}
	w := ctx.App.Writer
	fmt.Fprintf(w, "pc=%#018x step=%d insn=%08x\n", state.PC, state.Step, state.Instr())
	fmt.Fprint(w, fast.DumpRegisters(state))
	fmt.Fprint(w, fast.DumpCSRs(state))
	fmt.Fprintf(w, "memory: %d bytes, %d pages in use (%s)\n", state.Memory.Size(), state.Memory.PageCount(), state.Memory.Usage())
	return nil
}

var DumpCommand = &cli.Command{
	Name:        "dump",
	Usage:       "Print the registers and CSRs of a JSON state",
	Description: "Print the general purpose registers, the trap CSRs and the privilege mode of a JSON state",
	Action:      Dump,
	Flags: []cli.Flag{
		DumpInputFlag,
	},
}
