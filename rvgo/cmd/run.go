package cmd

import (
	"debug/elf"
	"errors"
	"fmt"
	"time"

	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	"github.com/rv64sim/rv64sim/rvgo/fast"
)

var (
	RunMaxStepsFlag = &cli.Uint64Flag{
		Name:    "max-steps",
		Usage:   "stop after this many steps; 0 for no limit",
		EnvVars: prefixEnvVars("RUN_MAX_STEPS"),
	}
	RunSymbolsFlag = &cli.PathFlag{
		Name:      "elf",
		Usage:     "optional ELF file to read symbols from, to name the running function in progress logs",
		EnvVars:   prefixEnvVars("RUN_ELF"),
		TakesFile: true,
	}
)

func loadSymbols(path string) (fast.SortedSymbols, error) {
	if path == "" {
		return nil, nil
	}
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file %q: %w", path, err)
	}
	defer f.Close()
	return fast.Symbols(f)
}

func Run(ctx *cli.Context) error {
	if ctx.Bool(RunPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	l, err := loggerFromFlags(ctx)
	if err != nil {
		return err
	}

	state, err := fast.LoadVMStateFromFile(ctx.Path(RunInputFlag.Name))
	if err != nil {
		return err
	}
	symbols, err := loadSymbols(ctx.Path(RunSymbolsFlag.Name))
	if err != nil {
		return err
	}

	stopAt := ctx.Generic(RunStopAtFlag.Name).(*StepMatcherFlag).Matcher()
	snapshotAt := ctx.Generic(RunSnapshotAtFlag.Name).(*StepMatcherFlag).Matcher()
	infoAt := ctx.Generic(RunInfoAtFlag.Name).(*StepMatcherFlag).Matcher()
	snapshotFmt := ctx.String(RunSnapshotFmtFlag.Name)
	maxSteps := ctx.Uint64(RunMaxStepsFlag.Name)

	us := fast.NewInstrumentedState(state, l)

	start := time.Now()
	startStep := state.Step

	for {
		step := state.Step
		if step%100 == 0 { // don't do the ctx err check (includes lock) too often
			if err := ctx.Context.Err(); err != nil {
				return err
			}
		}

		if infoAt(state) {
			delta := time.Since(start)
			l.Info("processing",
				"step", step,
				"pc", HexU64(state.PC),
				"insn", HexU32(state.Instr()),
				"ips", float64(step-startStep)/(float64(delta)/float64(time.Second)),
				"mode", state.Mode,
				"pages", state.Memory.PageCount(),
				"mem", state.Memory.Usage(),
				"name", symbols.LookupSymbol(state.PC),
			)
		}

		if stopAt(state) {
			l.Info("stopping at requested step", "step", step)
			break
		}
		if maxSteps != 0 && step-startStep >= maxSteps {
			l.Info("step limit reached", "step", step, "limit", maxSteps)
			break
		}

		if snapshotAt(state) {
			if err := fast.WriteVMStateToFile(fmt.Sprintf(snapshotFmt, step), state, OutFilePerm); err != nil {
				return fmt.Errorf("failed to write state snapshot: %w", err)
			}
		}

		if err := us.Step(); err != nil {
			var ierr *fast.InstrError
			if errors.As(err, &ierr) {
				l.Error("instruction failed", "step", step, "pc", HexU64(ierr.PC), "insn", HexU32(ierr.Instr),
					"op", us.LastInstruction(), "code", HexU32(uint32(ierr.Code)))
			}
			// the failing state is still written, for inspection
			if werr := writeRunOutput(ctx, state); werr != nil {
				l.Error("failed to write state output", "err", werr)
			}
			return fmt.Errorf("failed at step %d (PC: %016x): %w", step, state.PC, err)
		}

		if state.PC == 0 {
			l.Info("program returned to address 0", "step", state.Step)
			break
		}
	}

	return writeRunOutput(ctx, state)
}

func writeRunOutput(ctx *cli.Context, state *fast.VMState) error {
	if err := fast.WriteVMStateToFile(ctx.Path(RunOutputFlag.Name), state, OutFilePerm); err != nil {
		return fmt.Errorf("failed to write state output: %w", err)
	}
	return nil
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run VM step(s) from a JSON state",
	Description: "Run VM steps until the program returns to address 0 or an instruction fails. See flags to match when to output a snapshot, print progress, or to stop early.",
	Action:      Run,
	Flags: []cli.Flag{
		RunInputFlag,
		RunOutputFlag,
		RunSnapshotAtFlag,
		RunSnapshotFmtFlag,
		RunStopAtFlag,
		RunInfoAtFlag,
		RunMaxStepsFlag,
		RunSymbolsFlag,
		RunPProfCPU,
	},
}
