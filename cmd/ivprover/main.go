package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "ivprover"
	app.Usage = "Prove Uniswap V3 implied volatility with Brevis"
	app.Description = "Periodically proves the implied volatility of a Uniswap V3 pool from its largest swaps and submits the proof to the Brevis gateway"
	app.Flags = []cli.Flag{ConfigFlag, LogLevelFlag}
	app.Commands = []*cli.Command{
		RunCommand,
		OnceCommand,
		CompileCommand,
		ServeCommand,
		ApproxCommand,
		StatusCommand,
	}
	return app
}

func main() {
	app := newApp()
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
			_, _ = fmt.Fprintf(os.Stderr, "command interrupted\n")
			os.Exit(130)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}
