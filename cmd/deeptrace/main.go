// deeptrace runs a reference collector, and reads records from one.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

func main() {
	var (
		ctx    = context.Background()
		stdin  = os.Stdin
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdin, stdout, stderr, args)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func exec(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) (err error) {
	rootConfig := &rootConfig{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	rootFlags := ff.NewFlagSet("deeptrace")
	rootConfig.registerBaseFlags(rootFlags)

	rootCommand := &ff.Command{
		Name:      "deeptrace",
		ShortHelp: "run and query deeptrace collectors",
		Flags:     rootFlags,
	}

	// Config for `deeptrace collect`.
	collectConfig := &collectConfig{rootConfig: rootConfig}
	collectFlags := ff.NewFlagSet("collect").SetParent(rootFlags)
	collectConfig.register(collectFlags)
	collectCommand := &ff.Command{
		Name:      "collect",
		ShortHelp: "run an in-memory collector",
		LongHelp:  "Accept records over HTTP, serve them by ID, and stream them to subscribers.",
		Flags:     collectFlags,
		Exec:      collectConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, collectCommand)

	// Config for `deeptrace find`.
	findConfig := &findConfig{rootConfig: rootConfig}
	findFlags := ff.NewFlagSet("find").SetParent(rootFlags)
	findCommand := &ff.Command{
		Name:      "find",
		Usage:     "deeptrace find [FLAGS] ID [ID...]",
		ShortHelp: "fetch records by ID",
		Flags:     findFlags,
		Exec:      findConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, findCommand)

	// Config for `deeptrace tail`.
	tailConfig := &tailConfig{rootConfig: rootConfig}
	tailFlags := ff.NewFlagSet("tail").SetParent(rootFlags)
	tailConfig.register(tailFlags)
	tailCommand := &ff.Command{
		Name:      "tail",
		ShortHelp: "continuously stream new records to the terminal",
		Flags:     tailFlags,
		Exec:      tailConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, tailCommand)

	// Print help when appropriate.
	showHelp := true
	defer func() {
		errHelp := errors.Is(err, ff.ErrHelp) || errors.Is(err, ff.ErrNoExec)
		if showHelp || errHelp {
			fmt.Fprintf(stderr, "\n%s\n", ffhelp.Command(rootCommand))
		}
		if errHelp {
			err = nil
		}
	}()

	// Initial parsing.
	if err := rootCommand.Parse(args, ff.WithEnvVarPrefix("DEEPTRACE")); err != nil {
		return err
	}

	// Validation and set-up.
	logger, err := newLogger(stderr, rootConfig.logLevel, rootConfig.logFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()
	rootConfig.logger = logger

	// Run errors shouldn't show help by default.
	showHelp = false

	// Run the selected command.
	return rootCommand.Run(ctx)
}
