package cmd

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"

	"github.com/rv64sim/rv64sim/rvgo/riscv"
)

const envVarPrefix = "RVSIM"

func prefixEnvVars(name string) []string {
	return opservice.PrefixEnvVar(envVarPrefix, name)
}

var OutFilePerm = os.FileMode(0o755)

var (
	LogLevelFlag = &cli.StringFlag{
		Name:    "log.level",
		Usage:   "log level: trace, debug, info, warn, error or crit",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Value:   "info",
	}
	MemorySizeFlag = &cli.Uint64Flag{
		Name:    "memory-size",
		Usage:   "capacity of the flat physical memory, in bytes",
		EnvVars: prefixEnvVars("MEMORY_SIZE"),
		Value:   riscv.DefaultMemorySize,
	}

	LoadPathFlag = &cli.PathFlag{
		Name:      "path",
		Usage:     "path to the program to load",
		EnvVars:   prefixEnvVars("LOAD_PATH"),
		TakesFile: true,
		Required:  true,
	}
	LoadOutFlag = &cli.PathFlag{
		Name:    "output",
		Usage:   "output path of the state; .bin or .bin.gz for the binary format, .gz to compress",
		EnvVars: prefixEnvVars("LOAD_OUTPUT"),
		Value:   "state.json",
	}

	RunInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of the input JSON state",
		EnvVars:   prefixEnvVars("RUN_INPUT"),
		TakesFile: true,
		Required:  true,
	}
	RunOutputFlag = &cli.PathFlag{
		Name:    "output",
		Usage:   "path of the output state; .bin or .bin.gz for the binary format, empty to not write it",
		EnvVars: prefixEnvVars("RUN_OUTPUT"),
		Value:   "out.json",
	}
	RunStopAtFlag = &cli.GenericFlag{
		Name:    "stop-at",
		Usage:   "step pattern to stop at: " + patternHelp,
		EnvVars: prefixEnvVars("RUN_STOP_AT"),
		Value:   new(StepMatcherFlag),
	}
	RunSnapshotAtFlag = &cli.GenericFlag{
		Name:    "snapshot-at",
		Usage:   "step pattern to write a state snapshot at: " + patternHelp,
		EnvVars: prefixEnvVars("RUN_SNAPSHOT_AT"),
		Value:   new(StepMatcherFlag),
	}
	RunSnapshotFmtFlag = &cli.StringFlag{
		Name:    "snapshot-fmt",
		Usage:   "format for snapshot output file names",
		EnvVars: prefixEnvVars("RUN_SNAPSHOT_FMT"),
		Value:   "%d.bin.gz",
	}
	RunInfoAtFlag = &cli.GenericFlag{
		Name:    "info-at",
		Usage:   "step pattern to print progress info at: " + patternHelp,
		EnvVars: prefixEnvVars("RUN_INFO_AT"),
		Value:   MustStepMatcherFlag("%100000"),
	}
	RunPProfCPU = &cli.BoolFlag{
		Name:    "pprof.cpu",
		Usage:   "enable pprof cpu profiling",
		EnvVars: prefixEnvVars("RUN_PPROF_CPU"),
	}

	WitnessInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of the input JSON state",
		EnvVars:   prefixEnvVars("WITNESS_INPUT"),
		TakesFile: true,
		Required:  true,
	}
	WitnessOutputFlag = &cli.PathFlag{
		Name:    "output",
		Usage:   "path to write the witness to, - for stdout; empty to not write it",
		EnvVars: prefixEnvVars("WITNESS_OUTPUT"),
	}

	DumpInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of the input JSON state",
		EnvVars:   prefixEnvVars("DUMP_INPUT"),
		TakesFile: true,
		Required:  true,
	}
)

const patternHelp = "'never' (default), 'always', '=123' at exactly step 123, '%123' for every 123 steps"

func loggerFromFlags(ctx *cli.Context) (log.Logger, error) {
	lvl, err := ParseLevel(ctx.String(LogLevelFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", LogLevelFlag.Name, err)
	}
	return Logger(ctx.App.ErrWriter, lvl), nil
}
