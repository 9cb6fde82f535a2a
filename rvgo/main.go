package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/rv64sim/rv64sim/rvgo/cmd"
)

func main() {
	app := cli.NewApp()
	app.Name = "rvsim"
	app.Usage = "RV64I instruction set simulator"
	app.Description = "Load RISC-V programs into a JSON state, run them instruction by instruction, and inspect or commit to the resulting state"
	app.Flags = []cli.Flag{
		cmd.LogLevelFlag,
	}
	app.Commands = []*cli.Command{
		cmd.LoadBinaryCommand,
		cmd.LoadELFCommand,
		cmd.RunCommand,
		cmd.WitnessCommand,
		cmd.DumpCommand,
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			<-c
			cancel()
			fmt.Println("\r\nExiting...")
		}
	}()

	err := app.RunContext(ctx, os.Args)
	if err != nil {
		if errors.Is(err, ctx.Err()) {
			_, _ = fmt.Fprintf(os.Stderr, "command interrupted")
			os.Exit(130)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v", err)
			os.Exit(1)
		}
	}
}
